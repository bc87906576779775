package ui

const uiHeader = `
<html>
	<head>
	<style>
		body {
			font-family: monospace;
			margin: 2rem;
		}
		table {
			border-collapse: collapse;
		}
		th, td {
			border: 1px solid black;
			padding: 6px;
			text-align: left;
		}
		th {
			background-color: black;
			color: white;
		}
		nav a {
			margin-right: 1rem;
		}
	</style>
	</head>
	<body>
	<nav>
		<a href="/">summary</a>
		<a href="/trace">trace</a>
		<a href="/procs">processes</a>
	</nav>
`

const summaryView = `
	<h1>kmux run: {{.Program}}</h1>
	<p>finished at {{.RunTime}}</p>
	<table>
		<tr><th>ticks</th><td>{{.Ticks}}</td></tr>
		<tr><th>events</th><td>{{len .Events}}</td></tr>
		<tr><th>surviving processes</th><td>{{len .Procs}}</td></tr>
	</table>
`

const traceView = `
	<h1>scheduling trace</h1>
	<table>
		<tr><th>tick</th><th>pid</th><th>event</th></tr>
		{{range .Events}}
		<tr><td>{{.Tick}}</td><td>{{.PID}}</td><td>{{.What}}</td></tr>
		{{end}}
	</table>
`

const procsView = `
	<h1>surviving processes</h1>
	<table>
		<tr><th>id</th><th>level</th><th>priority</th><th>root</th></tr>
		{{range .Procs}}
		<tr><td>{{.ID}}</td><td>{{.Level}}</td><td>{{.Priority}}</td><td>{{printf "%#x" .Root}}</td></tr>
		{{end}}
	</table>
`

const uiFooter = `
	</body>
</html>
`
