package output

import (
	"bytes"
	"fmt"
	"html/template"
	"io"
	"sort"
	"time"
)

// htmlReport is what the HTML template renders.
type htmlReport struct {
	*RunSummary
	Started  string
	Duration string
	Errors   []errorRow
}

type errorRow struct {
	Endpoint    string
	Message     string
	Occurrences int64
}

var htmlFuncs = template.FuncMap{
	"formatNumber": formatNumber,
	"millis": func(v float64) string {
		return fmt.Sprintf("%.1f", v)
	},
	"percent": func(v float64) string {
		return fmt.Sprintf("%.2f", v*100)
	},
	"rate": func(v float64) string {
		return fmt.Sprintf("%.1f", v)
	},
}

var htmlTmpl = template.Must(template.New("report").Funcs(htmlFuncs).Parse(htmlTemplate))

// writeHTML renders a self-contained HTML report.
func writeHTML(w io.Writer, s *RunSummary) error {
	data := htmlReport{RunSummary: s, Started: s.StartTime, Duration: formatDuration(time.Duration(s.DurationMs) * time.Millisecond)}
	if t, err := time.Parse(time.RFC3339Nano, s.StartTime); err == nil {
		data.Started = t.Format("2006-01-02 15:04:05")
	}
	if data.Name == "" {
		data.Name = "hive"
	}

	for _, ep := range s.Endpoints {
		for msg, n := range ep.Messages {
			data.Errors = append(data.Errors, errorRow{Endpoint: ep.Method + " " + ep.Name, Message: msg, Occurrences: n})
		}
	}
	sort.Slice(data.Errors, func(i, j int) bool {
		if data.Errors[i].Occurrences != data.Errors[j].Occurrences {
			return data.Errors[i].Occurrences > data.Errors[j].Occurrences
		}
		return data.Errors[i].Message < data.Errors[j].Message
	})

	var buf bytes.Buffer
	if err := htmlTmpl.Execute(&buf, data); err != nil {
		return fmt.Errorf("failed to execute template: %w", err)
	}
	_, err := buf.WriteTo(w)
	return err
}

const htmlTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>{{.Name}} - Load Test Report</title>
    <style>
        :root {
            --bg: #f8fafc;
            --card: #ffffff;
            --text: #1e293b;
            --muted: #64748b;
            --border: #e2e8f0;
            --success: #22c55e;
            --error: #ef4444;
        }
        * { margin: 0; padding: 0; box-sizing: border-box; }
        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, 'Helvetica Neue', Arial, sans-serif;
            background: var(--bg);
            color: var(--text);
            line-height: 1.6;
        }
        .container { max-width: 1400px; margin: 0 auto; padding: 2rem; }
        header { display: flex; justify-content: space-between; align-items: center; margin-bottom: 2rem; }
        header .meta { color: var(--muted); display: flex; gap: 1.5rem; }
        .status { padding: 0.5rem 1.25rem; border-radius: 9999px; font-weight: 600; color: #fff; }
        .status.pass { background: var(--success); }
        .status.fail { background: var(--error); }
        .cards { display: grid; grid-template-columns: repeat(auto-fit, minmax(180px, 1fr)); gap: 1rem; margin-bottom: 2rem; }
        .card { background: var(--card); border: 1px solid var(--border); border-radius: 0.75rem; padding: 1.25rem; }
        .card .label { color: var(--muted); font-size: 0.875rem; }
        .card .value { font-size: 1.75rem; font-weight: 700; }
        .card .unit { font-size: 0.875rem; color: var(--muted); margin-left: 0.25rem; }
        section { background: var(--card); border: 1px solid var(--border); border-radius: 0.75rem; padding: 1.5rem; margin-bottom: 2rem; }
        section h2 { font-size: 1.125rem; margin-bottom: 1rem; }
        table { width: 100%; border-collapse: collapse; font-size: 0.875rem; }
        th, td { text-align: left; padding: 0.5rem 0.75rem; border-bottom: 1px solid var(--border); }
        th { color: var(--muted); font-weight: 600; }
        td.num, th.num { text-align: right; font-variant-numeric: tabular-nums; }
        tr.total td { font-weight: 700; }
        .pass { color: var(--success); }
        .fail { color: var(--error); }
        .error-box { border-left: 4px solid var(--error); padding: 0.75rem 1rem; margin-bottom: 2rem; background: #fef2f2; }
    </style>
</head>
<body>
<div class="container">
    <header>
        <div>
            <h1>{{.Name}}</h1>
            <div class="meta">
                <span>Run {{.RunID}}</span>
                <span>{{.Started}}</span>
                <span>{{.Duration}}</span>
                <span>Stopped by: {{.Reason}}</span>
            </div>
        </div>
        <div class="status {{if .Passed}}pass{{else}}fail{{end}}">{{if .Passed}}&#10003; PASSED{{else}}&#10007; FAILED{{end}}</div>
    </header>

    {{if .Error}}<div class="error-box">Error: {{.Error}}</div>{{end}}

    <div class="cards">
        <div class="card"><div class="label">Requests</div><div class="value">{{formatNumber .Total.Requests}}</div></div>
        <div class="card"><div class="label">Throughput</div><div class="value">{{rate .RPS}}<span class="unit">req/s</span></div></div>
        <div class="card"><div class="label">Failure Rate</div><div class="value">{{percent .FailureRate}}<span class="unit">%</span></div></div>
        <div class="card"><div class="label">Median</div><div class="value">{{millis .Total.P50Ms}}<span class="unit">ms</span></div></div>
        <div class="card"><div class="label">P95</div><div class="value">{{millis .Total.P95Ms}}<span class="unit">ms</span></div></div>
        <div class="card"><div class="label">P99</div><div class="value">{{millis .Total.P99Ms}}<span class="unit">ms</span></div></div>
    </div>

    <section>
        <h2>Request Statistics</h2>
        <table>
            <thead>
                <tr>
                    <th>Type</th><th>Name</th>
                    <th class="num"># Reqs</th><th class="num"># Fails</th>
                    <th class="num">Avg</th><th class="num">Min</th><th class="num">Max</th>
                    <th class="num">Med</th><th class="num">P90</th><th class="num">P95</th><th class="num">P99</th>
                    <th class="num">req/s</th>
                </tr>
            </thead>
            <tbody>
                {{range .Endpoints}}
                <tr>
                    <td>{{.Method}}</td><td>{{.Name}}</td>
                    <td class="num">{{formatNumber .Requests}}</td><td class="num">{{formatNumber .Failures}}</td>
                    <td class="num">{{millis .MeanMs}}</td><td class="num">{{millis .MinMs}}</td><td class="num">{{millis .MaxMs}}</td>
                    <td class="num">{{millis .P50Ms}}</td><td class="num">{{millis .P90Ms}}</td><td class="num">{{millis .P95Ms}}</td><td class="num">{{millis .P99Ms}}</td>
                    <td class="num">{{rate .RPS}}</td>
                </tr>
                {{end}}
                <tr class="total">
                    <td></td><td>Aggregated</td>
                    <td class="num">{{formatNumber .Total.Requests}}</td><td class="num">{{formatNumber .Total.Failures}}</td>
                    <td class="num">{{millis .Total.MeanMs}}</td><td class="num">{{millis .Total.MinMs}}</td><td class="num">{{millis .Total.MaxMs}}</td>
                    <td class="num">{{millis .Total.P50Ms}}</td><td class="num">{{millis .Total.P90Ms}}</td><td class="num">{{millis .Total.P95Ms}}</td><td class="num">{{millis .Total.P99Ms}}</td>
                    <td class="num">{{rate .Total.RPS}}</td>
                </tr>
            </tbody>
        </table>
    </section>

    {{if .Errors}}
    <section>
        <h2>Errors</h2>
        <table>
            <thead><tr><th class="num"># Occurrences</th><th>Endpoint</th><th>Error</th></tr></thead>
            <tbody>
                {{range .Errors}}
                <tr><td class="num">{{formatNumber .Occurrences}}</td><td>{{.Endpoint}}</td><td>{{.Message}}</td></tr>
                {{end}}
            </tbody>
        </table>
    </section>
    {{end}}

    {{if .Phases}}
    <section>
        <h2>Phases</h2>
        <table>
            <thead><tr><th>Phase</th><th>Entered</th><th class="num">Requests</th></tr></thead>
            <tbody>
                {{range .Phases}}
                <tr><td>{{.Phase}}</td><td>{{.At}}</td><td class="num">{{formatNumber .Requests}}</td></tr>
                {{end}}
            </tbody>
        </table>
    </section>
    {{end}}

    {{if .Thresholds}}
    <section>
        <h2>Thresholds</h2>
        <table>
            <thead><tr><th></th><th>Metric</th><th>Expression</th><th>Actual</th><th>Message</th></tr></thead>
            <tbody>
                {{range .Thresholds}}
                <tr>
                    <td class="{{if .Passed}}pass{{else}}fail{{end}}">{{if .Passed}}&#10003;{{else}}&#10007;{{end}}</td>
                    <td>{{.Metric}}</td><td>{{.Expression}}</td><td>{{.Value}}</td><td>{{.Message}}</td>
                </tr>
                {{end}}
            </tbody>
        </table>
    </section>
    {{end}}

    {{if or .TaskErrors .Abandoned}}
    <section>
        <h2>Users</h2>
        <p>Task errors: {{formatNumber .TaskErrors}}, abandoned users: {{formatNumber .Abandoned}}</p>
    </section>
    {{end}}
</div>
</body>
</html>
`
