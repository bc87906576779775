package cmd

import (
	"path/filepath"

	"github.com/adrg/xdg"
	"github.com/spf13/pflag"
)

type outputType int

const (
	jsonOut outputType = iota
	tableOut
)

const (
	outputFlag = "output"
	inputFlag  = "input"
	memFlag    = "mem"
	strideFlag = "stride"
	diskFlag   = "disk"
	traceFlag  = "trace"
	serveFlag  = "serve"
	logFlag    = "log"
)

type kmuxOpts struct {
	outType  outputType
	input    string
	memMiB   int
	stride   int
	diskPath string
	trace    bool
	serve    string
	logLevel int
}

// defaultDiskPath is where the persistent disk image lives unless --disk
// overrides it.
func defaultDiskPath() string {
	return filepath.Join(xdg.DataHome, "kmux", "disk.img")
}

// CLI flags to initialize
func init() {
	runCmd.Flags().StringP(outputFlag, "o", "table", "Output type for the final report [table (default), json].")
	listCmd.Flags().StringP(outputFlag, "o", "table", "Output type for command [table (default), json].")

	runCmd.Flags().StringP(inputFlag, "i", "", "Characters fed to the simulated keyboard.")
	runCmd.Flags().Int(memFlag, 16, "Simulated physical memory in MiB.")
	runCmd.Flags().Int(strideFlag, 1, "Free-frame list stride; >1 stresses non-contiguous mappings.")
	runCmd.Flags().String(diskFlag, "", "Disk image path. Defaults to the per-user data directory.")
	runCmd.Flags().Bool(traceFlag, false, "Print the scheduling trace after the run.")
	runCmd.Flags().String(serveFlag, "", "Serve the run report over HTTP at this address (e.g. :8080).")
	runCmd.Flags().Int(logFlag, 1, "Minimum kernel-log severity printed to stderr (0=DBG .. 4=USR).")
}

func newOptions(fs *pflag.FlagSet) kmuxOpts {
	ot := resolveOutputType(fs)
	input, _ := fs.GetString(inputFlag)
	mem, _ := fs.GetInt(memFlag)
	stride, _ := fs.GetInt(strideFlag)
	disk, _ := fs.GetString(diskFlag)
	trace, _ := fs.GetBool(traceFlag)
	serve, _ := fs.GetString(serveFlag)
	logLevel, _ := fs.GetInt(logFlag)

	if disk == "" {
		disk = defaultDiskPath()
	}

	return kmuxOpts{
		outType:  ot,
		input:    input,
		memMiB:   mem,
		stride:   stride,
		diskPath: disk,
		trace:    trace,
		serve:    serve,
		logLevel: logLevel,
	}
}

func resolveOutputType(fs *pflag.FlagSet) outputType {
	of, err := fs.GetString(outputFlag)
	if err != nil {
		return tableOut
	}
	if of == "json" {
		return jsonOut
	}
	return tableOut
}
