// The host package is responsible for gathering details about the host
// the simulated machine runs on; the CLI shows them with `kmux host`.
package host

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"golang.org/x/sys/unix"
)

const (
	DefaultProcRoot   = "/proc"
	OSReleaseFilePath = "/etc/os-release"
	OSKernelFilePath  = "sys/kernel/osrelease"
)

// OS represents details about the operating system.
type OS struct {
	Name    string
	Version string
}

// Kernel represents the operating-system's kernel's details.
type Kernel struct {
	Type    string
	Version string
}

// Hardware represents the hardware on the machine.
type Hardware struct {
	CPU          CPUInfo
	Architecture string
}

// CPUInfo represents details about the central processing unit.
type CPUInfo struct {
	CPUCount int
}

// HostReader defines the actions available for retrieving information
// about a host.
type HostReader interface {
	// GetOS retrieves operating-system details.
	GetOS() (*OS, error)
	// GetKernel retrieves kernel details.
	GetKernel() (*Kernel, error)
	// GetHardware retrieves hardware-level details. Or, in the case of a
	// virtual machine, what is exposed to the guest.
	GetHardware() (*Hardware, error)
}

// LinuxReader is the Linux-specific implementation of [HostReader].
type LinuxReader struct {
	procDir string
}

type LinuxReaderConfig struct {
	ProcDirPath string
}

func NewLinuxReader(conf LinuxReaderConfig) LinuxReader {
	if conf.ProcDirPath == "" {
		conf.ProcDirPath = DefaultProcRoot
	}
	return LinuxReader{
		procDir: conf.ProcDirPath,
	}
}

// GetOS looks up details about the operating system within
// /etc/os-release. We rely on details found inside os-release that comply
// with metadata found in the [freedesktop specification].
//
// [freedesktop specification]: https://www.freedesktop.org/software/systemd/man/os-release.html
func (h *LinuxReader) GetOS() (*OS, error) {
	releaseFileData, err := os.ReadFile(OSReleaseFilePath)
	if err != nil {
		return nil, fmt.Errorf("failed locating OS details at %s. Error was: %s",
			OSReleaseFilePath, err)
	}

	OSReleaseData := parseOSRelease(releaseFileData)
	return &OS{
		Name:    OSReleaseData["ID"],
		Version: OSReleaseData["VERSION"],
	}, nil
}

// GetKernel retrieves details about the kernel of the operating system.
func (h *LinuxReader) GetKernel() (*Kernel, error) {
	kernelFilePath := filepath.Join(h.procDir, OSKernelFilePath)
	kernelFileData, err := os.ReadFile(kernelFilePath)
	if err != nil {
		return nil, fmt.Errorf("failed getting kernel version from %s. Error was: %s", OSKernelFilePath, err)
	}
	return &Kernel{
		Type:    "Linux",
		Version: strings.TrimSpace(string(kernelFileData)),
	}, nil
}

// GetHardware retrieves the architecture via uname(2) and the processor
// count.
func (h *LinuxReader) GetHardware() (*Hardware, error) {
	var uts unix.Utsname
	if err := unix.Uname(&uts); err != nil {
		return nil, fmt.Errorf("failed running uname. Error was: %s", err)
	}
	return &Hardware{
		Architecture: unameString(uts.Machine),
		CPU:          CPUInfo{CPUCount: runtime.NumCPU()},
	}, nil
}

// unameString converts a fixed-size uname field into a string.
func unameString(f [65]byte) string {
	end := 0
	for end < len(f) && f[end] != 0 {
		end++
	}
	return string(f[:end])
}

// parseOSRelease reads the KEY=value lines of an os-release file into a
// map, dropping surrounding quotes.
func parseOSRelease(data []byte) map[string]string {
	out := map[string]string{}
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := scanner.Text()
		k, v, found := strings.Cut(line, "=")
		if !found {
			continue
		}
		out[k] = strings.Trim(v, `"`)
	}
	return out
}
