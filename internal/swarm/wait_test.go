package swarm_test

import (
	"math/rand"
	"testing"
	"time"

	"github.com/wesleyorama2/hive/internal/swarm"
)

func TestWaitFuncs(t *testing.T) {
	rng := rand.New(rand.NewSource(1))

	if d := swarm.NoWait()(rng, time.Second); d != 0 {
		t.Errorf("NoWait = %v, want 0", d)
	}
	if d := swarm.Constant(250*time.Millisecond)(rng, time.Second); d != 250*time.Millisecond {
		t.Errorf("Constant = %v, want 250ms", d)
	}

	pacing := swarm.ConstantPacing(time.Second)
	if d := pacing(rng, 300*time.Millisecond); d != 700*time.Millisecond {
		t.Errorf("ConstantPacing(300ms) = %v, want 700ms", d)
	}
	if d := pacing(rng, 2*time.Second); d != 0 {
		t.Errorf("ConstantPacing(2s) = %v, want 0", d)
	}
}

func TestBetween_Range(t *testing.T) {
	rng := rand.New(rand.NewSource(9))
	wait := swarm.Between(100*time.Millisecond, 200*time.Millisecond)

	for i := 0; i < 1000; i++ {
		d := wait(rng, 0)
		if d < 100*time.Millisecond || d > 200*time.Millisecond {
			t.Fatalf("Between = %v, outside [100ms, 200ms]", d)
		}
	}

	if d := swarm.Between(time.Second, time.Second)(rng, 0); d != time.Second {
		t.Errorf("Between(1s, 1s) = %v, want 1s", d)
	}
	if d := swarm.Between(2*time.Second, time.Second)(rng, 0); d < time.Second || d > 2*time.Second {
		t.Errorf("Between with swapped bounds = %v", d)
	}
}

func TestWaitConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     swarm.WaitConfig
		wantErr bool
	}{
		{"empty", swarm.WaitConfig{}, false},
		{"none", swarm.WaitConfig{Type: swarm.WaitNone}, false},
		{"constant", swarm.WaitConfig{Type: swarm.WaitConstant, Duration: time.Second}, false},
		{"negative constant", swarm.WaitConfig{Type: swarm.WaitConstant, Duration: -time.Second}, true},
		{"between", swarm.WaitConfig{Type: swarm.WaitBetween, Min: time.Second, Max: 2 * time.Second}, false},
		{"between inverted", swarm.WaitConfig{Type: swarm.WaitBetween, Min: 2 * time.Second, Max: time.Second}, true},
		{"pacing", swarm.WaitConfig{Type: swarm.WaitPacing, Duration: time.Second}, false},
		{"constant without duration", swarm.WaitConfig{Type: swarm.WaitConstant}, true},
		{"pacing without duration", swarm.WaitConfig{Type: swarm.WaitPacing}, true},
		{"between without bounds", swarm.WaitConfig{Type: swarm.WaitBetween}, true},
		{"between zero min", swarm.WaitConfig{Type: swarm.WaitBetween, Max: time.Second}, false},
		{"between negative min", swarm.WaitConfig{Type: swarm.WaitBetween, Min: -time.Second, Max: time.Second}, true},
		{"unknown", swarm.WaitConfig{Type: "sometimes"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !swarm.IsConfigurationError(err) {
				t.Errorf("Validate() error = %T, want *ConfigurationError", err)
			}
		})
	}
}

func TestWaitConfig_String(t *testing.T) {
	tests := []struct {
		cfg  swarm.WaitConfig
		want string
	}{
		{swarm.WaitConfig{}, "none"},
		{swarm.WaitConfig{Type: swarm.WaitConstant, Duration: time.Second}, "constant 1s"},
		{swarm.WaitConfig{Type: swarm.WaitBetween, Min: time.Second, Max: 3 * time.Second}, "between 1s and 3s"},
		{swarm.WaitConfig{Type: swarm.WaitPacing, Duration: 2 * time.Second}, "pacing 2s"},
	}

	for _, tt := range tests {
		if got := tt.cfg.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}
