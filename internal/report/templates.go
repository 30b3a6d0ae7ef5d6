package report

const htmlTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>{{.Name}} - Wallet Load Report</title>
    <script src="https://cdn.jsdelivr.net/npm/chart.js"></script>
    <style>
        :root {
            --bg-primary: #ffffff;
            --bg-secondary: #f8fafc;
            --bg-card: #ffffff;
            --text-primary: #1e293b;
            --text-secondary: #64748b;
            --text-muted: #94a3b8;
            --border-color: #e2e8f0;
            --accent-primary: #3b82f6;
            --accent-success: #22c55e;
            --accent-warning: #f59e0b;
            --accent-error: #ef4444;
            --shadow: 0 1px 3px rgba(0, 0, 0, 0.1);
        }

        [data-theme="dark"] {
            --bg-primary: #0f172a;
            --bg-secondary: #1e293b;
            --bg-card: #1e293b;
            --text-primary: #f1f5f9;
            --text-secondary: #94a3b8;
            --text-muted: #64748b;
            --border-color: #334155;
            --shadow: 0 1px 3px rgba(0, 0, 0, 0.3);
        }

        * { margin: 0; padding: 0; box-sizing: border-box; }

        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, Arial, sans-serif;
            background-color: var(--bg-secondary);
            color: var(--text-primary);
            line-height: 1.6;
        }

        .container { max-width: 1400px; margin: 0 auto; padding: 2rem; }

        .header, .section, .metric-card {
            background: var(--bg-card);
            border-radius: 12px;
            box-shadow: var(--shadow);
        }

        .header {
            padding: 2rem;
            margin-bottom: 2rem;
            display: flex;
            justify-content: space-between;
            align-items: center;
            flex-wrap: wrap;
            gap: 1rem;
        }

        .header h1 { font-size: 1.75rem; margin-bottom: 0.5rem; }
        .header .description { color: var(--text-secondary); }
        .header .meta { display: flex; flex-wrap: wrap; gap: 1.5rem; margin-top: 0.75rem; font-size: 0.875rem; color: var(--text-muted); }
        .header-right { display: flex; align-items: center; gap: 1rem; }

        .status { padding: 0.75rem 1.5rem; border-radius: 8px; font-weight: 600; }
        .status.pass { background: rgba(34, 197, 94, 0.1); color: var(--accent-success); }
        .status.fail { background: rgba(239, 68, 68, 0.1); color: var(--accent-error); }

        .theme-toggle {
            background: var(--bg-secondary);
            border: 1px solid var(--border-color);
            border-radius: 8px;
            padding: 0.5rem;
            cursor: pointer;
            color: var(--text-secondary);
        }

        .banner {
            margin-bottom: 2rem;
            padding: 0.75rem 1rem;
            border-radius: 8px;
            background: rgba(239, 68, 68, 0.1);
            color: var(--accent-error);
        }

        .banner.warn { background: rgba(245, 158, 11, 0.1); color: var(--accent-warning); }

        .metrics-grid {
            display: grid;
            grid-template-columns: repeat(auto-fit, minmax(180px, 1fr));
            gap: 1rem;
            margin-bottom: 2rem;
        }

        .metric-card { padding: 1.5rem; }
        .metric-card .label { font-size: 0.75rem; text-transform: uppercase; letter-spacing: 0.05em; color: var(--text-muted); }
        .metric-card .value { font-size: 1.75rem; font-weight: 700; }
        .metric-card .value.bad { color: var(--accent-error); }
        .metric-card .unit { font-size: 0.875rem; color: var(--text-secondary); margin-left: 0.25rem; }

        .section { padding: 1.5rem; margin-bottom: 2rem; }
        .section-title { font-size: 1.125rem; font-weight: 600; margin-bottom: 1.25rem; }

        .latency-grid { display: grid; grid-template-columns: repeat(auto-fit, minmax(110px, 1fr)); gap: 1rem; }
        .latency-item { text-align: center; padding: 1rem; background: var(--bg-secondary); border-radius: 8px; }
        .latency-item .percentile { font-size: 0.75rem; color: var(--text-muted); }
        .latency-item .time { font-size: 1.25rem; font-weight: 600; }

        .chart-grid { display: grid; grid-template-columns: repeat(auto-fit, minmax(500px, 1fr)); gap: 1.5rem; }
        .chart-container { background: var(--bg-secondary); border-radius: 8px; padding: 1rem; }
        .chart-title { font-size: 0.875rem; font-weight: 600; color: var(--text-secondary); margin-bottom: 0.75rem; }
        .chart-wrapper { position: relative; height: 250px; }

        .phase-legend { display: flex; flex-wrap: wrap; gap: 1rem; margin-top: 1rem; font-size: 0.75rem; color: var(--text-secondary); }
        .phase-dot { display: inline-block; width: 10px; height: 10px; border-radius: 50%; margin-right: 0.25rem; }
        .phase-dot.init { background: #94a3b8; }
        .phase-dot.ramp-up { background: #22c55e; }
        .phase-dot.steady { background: #3b82f6; }
        .phase-dot.ramp-down { background: #8b5cf6; }
        .phase-dot.graceful-stop { background: #f59e0b; }

        .stats-table { width: 100%; border-collapse: collapse; font-size: 0.875rem; }
        .stats-table th, .stats-table td { padding: 0.75rem 1rem; text-align: left; border-bottom: 1px solid var(--border-color); }
        .stats-table th { background: var(--bg-secondary); font-size: 0.75rem; text-transform: uppercase; color: var(--text-secondary); }
        .stats-table td.num { font-family: 'SF Mono', Monaco, monospace; }

        .threshold-list { display: flex; flex-direction: column; gap: 0.75rem; }
        .threshold-item { display: flex; align-items: center; gap: 1rem; padding: 1rem; background: var(--bg-secondary); border-radius: 8px; }
        .threshold-icon { width: 24px; height: 24px; border-radius: 50%; display: flex; align-items: center; justify-content: center; color: white; }
        .threshold-icon.pass { background: var(--accent-success); }
        .threshold-icon.fail { background: var(--accent-error); }
        .threshold-info { flex: 1; }
        .threshold-metric { font-weight: 600; }
        .threshold-expression { font-size: 0.875rem; color: var(--text-secondary); font-family: monospace; }
        .threshold-value { font-family: monospace; font-size: 0.875rem; }
        .nodata { color: var(--accent-warning); font-size: 0.75rem; }

        .footer { text-align: center; padding: 2rem; color: var(--text-muted); font-size: 0.875rem; }

        @media (max-width: 768px) {
            .chart-grid { grid-template-columns: 1fr; }
        }
    </style>
</head>
<body>
    <div class="container">
        <header class="header">
            <div class="header-left">
                <h1>{{.Name}}</h1>
                {{if .Description}}<p class="description">{{.Description}}</p>{{end}}
                <div class="meta">
                    <span>Target: {{.Target}}</span>
                    <span>Executor: {{.Executor}}</span>
                    {{if .RunID}}<span>Run: {{.RunID}}</span>{{end}}
                    <span>Started: {{.StartTime.Format "2006-01-02 15:04:05"}}</span>
                    <span>Duration: {{formatDuration .Duration}}</span>
                </div>
            </div>
            <div class="header-right">
                <div class="status {{if .Passed}}pass{{else}}fail{{end}}">
                    {{if .Passed}}✓ PASSED{{else}}✗ FAILED{{end}}
                </div>
                <button class="theme-toggle" onclick="toggleTheme()" title="Toggle dark mode">◐</button>
            </div>
        </header>

        {{if .Error}}<div class="banner">Run error: {{.Error}}</div>{{end}}
        {{if .Interrupted}}<div class="banner warn">Run interrupted before its configured duration elapsed.</div>{{end}}

        <div class="metrics-grid">
            <div class="metric-card">
                <div class="label">Total Requests</div>
                <div class="value">{{formatNumber .Metrics.TotalRequests}}</div>
            </div>
            <div class="metric-card">
                <div class="label">Throughput</div>
                <div class="value">{{printf "%.1f" .Metrics.RPS}}<span class="unit">req/s</span></div>
            </div>
            <div class="metric-card">
                <div class="label">Error Rate</div>
                <div class="value">{{percent .Metrics.ErrorRate}}<span class="unit">%</span></div>
            </div>
            <div class="metric-card">
                <div class="label">P95 Latency</div>
                <div class="value">{{formatLatency .Metrics.Latency.P95}}</div>
            </div>
            <div class="metric-card">
                <div class="label">Success Rate</div>
                <div class="value">{{printf "%.2f" (successRate .Metrics)}}<span class="unit">%</span></div>
            </div>
            <div class="metric-card">
                <div class="label">Fail-Closed (503)</div>
                <div class="value">{{formatNumber .Metrics.FailClosedResponses}}</div>
            </div>
            <div class="metric-card">
                <div class="label">Dropped Iterations</div>
                <div class="value{{if droppedTotal .Report}} bad{{end}}">{{formatNumber (droppedTotal .Report)}}</div>
            </div>
            <div class="metric-card">
                <div class="label">Data Received</div>
                <div class="value">{{formatBytes .Metrics.TotalBytes}}</div>
            </div>
        </div>

        <section class="section">
            <h2 class="section-title">Latency</h2>
            <div class="latency-grid">
                <div class="latency-item"><div class="percentile">Min</div><div class="time">{{formatLatency .Metrics.Latency.Min}}</div></div>
                <div class="latency-item"><div class="percentile">P50</div><div class="time">{{formatLatency .Metrics.Latency.P50}}</div></div>
                <div class="latency-item"><div class="percentile">P90</div><div class="time">{{formatLatency .Metrics.Latency.P90}}</div></div>
                <div class="latency-item"><div class="percentile">P95</div><div class="time">{{formatLatency .Metrics.Latency.P95}}</div></div>
                <div class="latency-item"><div class="percentile">P99</div><div class="time">{{formatLatency .Metrics.Latency.P99}}</div></div>
                <div class="latency-item"><div class="percentile">Max</div><div class="time">{{formatLatency .Metrics.Latency.Max}}</div></div>
                <div class="latency-item"><div class="percentile">Mean</div><div class="time">{{formatLatency .Metrics.Latency.Mean}}</div></div>
                <div class="latency-item"><div class="percentile">Std Dev</div><div class="time">{{formatLatency .Metrics.Latency.StdDev}}</div></div>
            </div>
        </section>

        {{if .TimeSeries}}
        <section class="section">
            <h2 class="section-title">Over Time</h2>
            <div class="chart-grid">
                <div class="chart-container">
                    <div class="chart-title">Requests Per Second</div>
                    <div class="chart-wrapper"><canvas id="rpsChart"></canvas></div>
                </div>
                <div class="chart-container">
                    <div class="chart-title">Latency Percentiles</div>
                    <div class="chart-wrapper"><canvas id="latencyChart"></canvas></div>
                </div>
                <div class="chart-container">
                    <div class="chart-title">Active Virtual Users</div>
                    <div class="chart-wrapper"><canvas id="vusChart"></canvas></div>
                </div>
                <div class="chart-container">
                    <div class="chart-title">Error Rate</div>
                    <div class="chart-wrapper"><canvas id="errorChart"></canvas></div>
                </div>
                <div class="chart-container">
                    <div class="chart-title">Fail-Closed and Dropped per Interval</div>
                    <div class="chart-wrapper"><canvas id="pressureChart"></canvas></div>
                </div>
            </div>
            <div class="phase-legend">
                <span><span class="phase-dot init"></span>Init</span>
                <span><span class="phase-dot ramp-up"></span>Ramp-Up</span>
                <span><span class="phase-dot steady"></span>Steady</span>
                <span><span class="phase-dot ramp-down"></span>Ramp-Down</span>
                <span><span class="phase-dot graceful-stop"></span>Graceful Stop</span>
            </div>
        </section>
        {{end}}

        {{if .Operations}}
        <section class="section">
            <h2 class="section-title">Operations</h2>
            <table class="stats-table">
                <thead>
                    <tr><th>Operation</th><th>Count</th><th>Min</th><th>Mean</th><th>P50</th><th>P95</th><th>P99</th><th>Max</th></tr>
                </thead>
                <tbody>
                    {{range .Operations}}
                    <tr>
                        <td>{{.Operation}}</td>
                        <td class="num">{{formatNumber .Count}}</td>
                        <td class="num">{{formatLatency .Latency.Min}}</td>
                        <td class="num">{{formatLatency .Latency.Mean}}</td>
                        <td class="num">{{formatLatency .Latency.P50}}</td>
                        <td class="num">{{formatLatency .Latency.P95}}</td>
                        <td class="num">{{formatLatency .Latency.P99}}</td>
                        <td class="num">{{formatLatency .Latency.Max}}</td>
                    </tr>
                    {{end}}
                </tbody>
            </table>
        </section>
        {{end}}

        {{if .Checks}}
        <section class="section">
            <h2 class="section-title">Checks</h2>
            <table class="stats-table">
                <thead>
                    <tr><th>Check</th><th>Passed</th><th>Failed</th><th>Rate</th></tr>
                </thead>
                <tbody>
                    {{range .Checks}}
                    <tr>
                        <td>{{.Name}}</td>
                        <td class="num">{{formatNumber .Passed}}</td>
                        <td class="num">{{formatNumber .Failed}}</td>
                        <td class="num">{{percent .Rate}}%</td>
                    </tr>
                    {{end}}
                </tbody>
            </table>
        </section>
        {{end}}

        {{if .Thresholds}}
        <section class="section">
            <h2 class="section-title">Thresholds</h2>
            <div class="threshold-list">
                {{range .Thresholds}}
                <div class="threshold-item">
                    <span class="threshold-icon {{if .Passed}}pass{{else}}fail{{end}}">{{if .Passed}}✓{{else}}✗{{end}}</span>
                    <div class="threshold-info">
                        <div class="threshold-metric">{{.Metric}}</div>
                        <div class="threshold-expression">{{.Expression}}</div>
                    </div>
                    <div class="threshold-value">
                        Actual: {{.Value}}
                        {{if .NoData}}<br><span class="nodata">no samples</span>{{else if .Message}}<br><span class="nodata">{{.Message}}</span>{{end}}
                    </div>
                </div>
                {{end}}
            </div>
        </section>
        {{end}}

        <footer class="footer">
            <p>Generated by walletprobe • {{.EndTime.Format "2006-01-02 15:04:05 MST"}}</p>
        </footer>
    </div>

    <script>
        function toggleTheme() {
            const html = document.documentElement;
            const next = html.getAttribute('data-theme') === 'dark' ? 'light' : 'dark';
            html.setAttribute('data-theme', next);
            localStorage.setItem('theme', next);
            updateChartColors();
        }

        document.documentElement.setAttribute('data-theme', localStorage.getItem('theme') || 'light');

        function getChartColors() {
            const isDark = document.documentElement.getAttribute('data-theme') === 'dark';
            return {
                text: isDark ? '#f1f5f9' : '#1e293b',
                grid: isDark ? '#334155' : '#e2e8f0',
                primary: '#3b82f6',
                success: '#22c55e',
                warning: '#f59e0b',
                error: '#ef4444',
                purple: '#8b5cf6',
            };
        }

        const timeSeriesData = {{.TimeSeriesJSON}};

        const labels = timeSeriesData.map((d, i) => i + 's');
        const toMs = ns => ns / 1000000;
        const series = {
            rps: timeSeriesData.map(d => d.intervalRPS),
            p50: timeSeriesData.map(d => toMs(d.latencyP50)),
            p95: timeSeriesData.map(d => toMs(d.latencyP95)),
            p99: timeSeriesData.map(d => toMs(d.latencyP99)),
            vus: timeSeriesData.map(d => d.activeVUs),
            errors: timeSeriesData.map(d => d.intervalErrorRate * 100),
            failClosed: timeSeriesData.map(d => d.intervalFailClosed),
            dropped: timeSeriesData.map(d => d.intervalDropped),
        };

        let charts = [];

        function line(label, data, color, extra) {
            return Object.assign({
                label: label,
                data: data,
                borderColor: color,
                backgroundColor: 'transparent',
                tension: 0.3,
                pointRadius: 0,
                borderWidth: 2,
            }, extra || {});
        }

        function createCharts() {
            const colors = getChartColors();
            const options = (yTitle) => ({
                responsive: true,
                maintainAspectRatio: false,
                interaction: { mode: 'index', intersect: false },
                plugins: { legend: { labels: { color: colors.text, usePointStyle: true } } },
                scales: {
                    x: { ticks: { color: colors.text }, grid: { color: colors.grid } },
                    y: {
                        beginAtZero: true,
                        ticks: { color: colors.text },
                        grid: { color: colors.grid },
                        title: { display: !!yTitle, text: yTitle || '', color: colors.text },
                    },
                },
            });
            const make = (id, datasets, yTitle) => {
                const el = document.getElementById(id);
                if (el) {
                    charts.push(new Chart(el.getContext('2d'), {
                        type: 'line',
                        data: { labels: labels, datasets: datasets },
                        options: options(yTitle),
                    }));
                }
            };

            make('rpsChart', [line('Requests/sec', series.rps, colors.primary, { fill: true, backgroundColor: colors.primary + '20' })]);
            make('latencyChart', [
                line('P50', series.p50, colors.success),
                line('P95', series.p95, colors.warning),
                line('P99', series.p99, colors.error),
            ], 'Latency (ms)');
            make('vusChart', [line('Active VUs', series.vus, colors.purple, { stepped: true, fill: true, backgroundColor: colors.purple + '20' })]);
            make('errorChart', [line('Error Rate (%)', series.errors, colors.error, { fill: true, backgroundColor: colors.error + '20' })], 'Error Rate (%)');
            make('pressureChart', [
                line('Fail-closed', series.failClosed, colors.warning),
                line('Dropped', series.dropped, colors.error),
            ], 'Count');
        }

        function updateChartColors() {
            const colors = getChartColors();
            charts.forEach(chart => {
                chart.options.plugins.legend.labels.color = colors.text;
                chart.options.scales.x.ticks.color = colors.text;
                chart.options.scales.x.grid.color = colors.grid;
                chart.options.scales.y.ticks.color = colors.text;
                chart.options.scales.y.grid.color = colors.grid;
                chart.options.scales.y.title.color = colors.text;
                chart.update();
            });
        }

        document.addEventListener('DOMContentLoaded', function() {
            if (timeSeriesData && timeSeriesData.length > 0) {
                createCharts();
            }
        });
    </script>
</body>
</html>`
