package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/arctir/kmux/host"
	"github.com/arctir/kmux/hw"
	"github.com/arctir/kmux/kern"
	"github.com/arctir/kmux/kio"
	"github.com/arctir/kmux/progs"
	"github.com/arctir/kmux/ui"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

// SetupCLI constructs the cobra hierarchy of the kmux CLI.
func SetupCLI() *cobra.Command {
	kmuxCmd.AddCommand(runCmd)
	kmuxCmd.AddCommand(listCmd)
	kmuxCmd.AddCommand(hostCmd)

	return kmuxCmd
}

// runKmux defines what should occur when `kmux ...` is run.
func runKmux(cmd *cobra.Command, args []string) {
	// if kmux is run without a command (argument), print help.
	if len(args) == 0 {
		cmd.Help()
		os.Exit(0)
	}
}

// report is the machine state of interest once a run completed.
type report struct {
	Program    string
	Ticks      uint64
	FreeFrames uint64
	HeapFree   uint64
	Fault      string `json:",omitempty"`
}

// runRun defines the behavior of running `kmux run ...`.
func runRun(cmd *cobra.Command, args []string) {
	if len(args) < 1 {
		cmd.Help()
		os.Exit(0)
	}
	opts := newOptions(cmd.Flags())

	prog, ok := progs.Lookup(args[0])
	if !ok {
		outputErrorAndFail(fmt.Sprintf("no program named %s; try `kmux ls`", args[0]))
	}

	m, devs := buildMachine(prog, opts)

	runErr := m.Run()
	if runErr != nil {
		fmt.Fprintln(os.Stderr, runErr)
	}

	saveDisk(opts.diskPath, devs.disk)

	rep := report{
		Program:    prog.Name,
		Ticks:      m.Ticks(),
		FreeFrames: m.FreeFrames(),
		HeapFree:   m.HeapAvail(),
	}
	if runErr != nil {
		rep.Fault = runErr.Error()
	}
	out, err := createReportOutput(rep, m, opts)
	if err != nil {
		outputErrorAndFail(fmt.Sprintf("failed creating output for the run report: %s", err))
	}
	output(out)

	if opts.serve != "" {
		view := ui.New(ui.Data{
			Program: prog.Name,
			Ticks:   m.Ticks(),
			Events:  m.Events(),
			Procs:   m.Snapshot(),
		})
		if err := view.Serve(opts.serve); err != nil {
			outputErrorAndFail(fmt.Sprintf("failed serving the run report: %s", err))
		}
	}
}

type devices struct {
	kbd  *hw.Keyboard
	vid  *hw.Video
	disk *hw.Disk
}

// buildMachine wires one simulated computer: devices, IO module, user
// program and kernel.
func buildMachine(prog progs.Program, opts kmuxOpts) (*kern.Machine, devices) {
	apic := hw.NewAPIC()
	kbd := hw.NewKeyboard(apic, 1)
	vid := hw.NewVideo(os.Stdout)
	disk := hw.NewDisk(apic, 14, 2048)
	loadDisk(opts.diskPath, disk)

	iomod := kio.New(kbd, vid, disk)
	m := kern.New(kern.Config{
		MemSize:    uint64(opts.memMiB) * kern.MiB,
		Stride:     opts.stride,
		LogWriter:  os.Stderr,
		LogLevel:   kern.Severity(opts.logLevel),
		Trace:      opts.trace,
		APIC:       apic,
		IOModule:   iomod.Module(),
		UserModule: progs.Module(prog.Body),
	})
	iomod.SetBusMaster(hw.NewBusMaster(disk, m.DMA()))

	if opts.input != "" {
		kbd.Feed([]byte(opts.input))
	}

	return m, devices{kbd: kbd, vid: vid, disk: disk}
}

func loadDisk(path string, disk *hw.Disk) {
	img, err := os.ReadFile(path)
	if err != nil {
		// a missing image just means a blank disk
		return
	}
	disk.Load(img)
}

func saveDisk(path string, disk *hw.Disk) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		fmt.Fprintf(os.Stderr, "cannot persist the disk image: %s\n", err)
		return
	}
	if err := os.WriteFile(path, disk.Image(), 0644); err != nil {
		fmt.Fprintf(os.Stderr, "cannot persist the disk image: %s\n", err)
	}
}

// runList defines the behavior of running `kmux ls`.
func runList(cmd *cobra.Command, args []string) {
	opts := newOptions(cmd.Flags())
	out, err := createProgramListOutput(progs.All(), opts)
	if err != nil {
		outputErrorAndFail(fmt.Sprintf("failed creating output for programs: %s", err))
	}
	output(out)
}

// runHost defines the behavior of running `kmux host`.
func runHost(cmd *cobra.Command, args []string) {
	r := host.NewLinuxReader(host.LinuxReaderConfig{})
	rows := [][]string{}

	if k, err := r.GetKernel(); err == nil {
		rows = append(rows, []string{"kernel", k.Type + " " + k.Version})
	}
	if o, err := r.GetOS(); err == nil {
		rows = append(rows, []string{"os", o.Name + " " + o.Version})
	}
	if h, err := r.GetHardware(); err == nil {
		rows = append(rows, []string{"arch", h.Architecture})
		rows = append(rows, []string{"cpus", strconv.Itoa(h.CPU.CPUCount)})
	}

	var buf bytes.Buffer
	table := tablewriter.NewWriter(&buf)
	table.SetHeader([]string{"key", "value"})
	table.AppendBulk(rows)
	table.Render()
	output(buf.Bytes())
}

func output(out []byte) {
	fmt.Printf("%s", out)
}

func outputErrorAndFail(msg string) {
	fmt.Println(msg)
	// exit(1) is the catchall for general errors.
	os.Exit(1)
}

func createProgramListOutput(ps []progs.Program, opts kmuxOpts) ([]byte, error) {
	if opts.outType == jsonOut {
		out, _ := json.Marshal(ps)
		return out, nil
	}

	rows := [][]string{}
	for _, p := range ps {
		rows = append(rows, []string{p.Name, p.Short})
	}

	var buf bytes.Buffer
	table := tablewriter.NewWriter(&buf)
	table.SetHeader([]string{"name", "description"})
	table.AppendBulk(rows)
	table.Render()
	return buf.Bytes(), nil
}

func createReportOutput(rep report, m *kern.Machine, opts kmuxOpts) ([]byte, error) {
	if opts.outType == jsonOut {
		out, _ := json.Marshal(rep)
		return out, nil
	}

	var buf bytes.Buffer
	table := tablewriter.NewWriter(&buf)
	table.SetHeader([]string{"program", "ticks", "free frames", "free heap"})
	table.Append([]string{
		rep.Program,
		strconv.FormatUint(rep.Ticks, 10),
		strconv.FormatUint(rep.FreeFrames, 10),
		strconv.FormatUint(rep.HeapFree, 10),
	})
	table.Render()

	if opts.trace {
		trace := tablewriter.NewWriter(&buf)
		trace.SetHeader([]string{"tick", "pid", "event"})
		for _, e := range m.Events() {
			trace.Append([]string{
				strconv.FormatUint(e.Tick, 10),
				strconv.Itoa(int(e.PID)),
				e.What,
			})
		}
		trace.Render()
	}
	return buf.Bytes(), nil
}
