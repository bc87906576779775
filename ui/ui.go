// ui renders the report of a finished kmux run in a browser: the
// scheduling trace and the final state of the surviving processes.
package ui

import (
	"fmt"
	"html/template"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/arctir/kmux/kern"
)

const (
	tracePath = "/trace"
	procsPath = "/procs"
)

// Data is everything the view renders.
type Data struct {
	Program string
	Ticks   uint64
	RunTime time.Time
	Events  []kern.Event
	Procs   []kern.ProcState
}

type UI struct {
	data Data
	lock sync.Mutex
}

func New(data Data) *UI {
	if data.RunTime.IsZero() {
		data.RunTime = time.Now()
	}
	return &UI{data: data}
}

// Serve blocks serving the report at addr.
func (ui *UI) Serve(addr string) error {
	http.HandleFunc("/", ui.handleSummary)
	http.HandleFunc(tracePath, ui.handleTrace)
	http.HandleFunc(procsPath, ui.handleProcs)

	log.Printf("serving run report at %s", addr)
	return http.ListenAndServe(addr, nil)
}

func (ui *UI) handleSummary(w http.ResponseWriter, r *http.Request) {
	ui.lock.Lock()
	defer ui.lock.Unlock()
	t, err := createTemplate(summaryView)
	if err != nil {
		writeFailure(w, err)
		return
	}
	if err := t.Execute(w, ui.data); err != nil {
		writeFailure(w, err)
	}
}

func (ui *UI) handleTrace(w http.ResponseWriter, r *http.Request) {
	ui.lock.Lock()
	defer ui.lock.Unlock()
	t, err := createTemplate(traceView)
	if err != nil {
		writeFailure(w, err)
		return
	}
	if err := t.Execute(w, ui.data); err != nil {
		writeFailure(w, err)
	}
}

func (ui *UI) handleProcs(w http.ResponseWriter, r *http.Request) {
	ui.lock.Lock()
	defer ui.lock.Unlock()
	t, err := createTemplate(procsView)
	if err != nil {
		writeFailure(w, err)
		return
	}
	if err := t.Execute(w, ui.data); err != nil {
		writeFailure(w, err)
	}
}

// createTemplate returns a final template with your template (temp)
// specified and wrapped with the shared header and footer.
func createTemplate(temp string) (*template.Template, error) {
	t, err := template.New("response").Parse(uiHeader + temp + uiFooter)
	if err != nil {
		return nil, err
	}
	return t, nil
}

func writeFailure(w http.ResponseWriter, err error) {
	w.WriteHeader(http.StatusInternalServerError)
	fmt.Fprintf(w, "render failure: %s", err)
}
