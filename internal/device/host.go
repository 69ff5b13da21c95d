package device

import (
	"context"
	"os"
	"runtime"
	"strings"
)

// Static is a Source returning fixed values.
type Static struct {
	System  SystemInfo
	Account AccountInfo
	Network string
}

func (s Static) SystemInfo() (SystemInfo, error) {
	return s.System, nil
}

func (s Static) AccountInfo() (AccountInfo, error) {
	return s.Account, nil
}

func (s Static) NetworkType(context.Context) (string, error) {
	return s.Network, nil
}

// Host describes the machine the process runs on. It backs command line
// tools and server side integrations.
func Host(appID, appVersion string) Static {
	hostname, _ := os.Hostname()
	return Static{
		System: SystemInfo{
			Platform: runtime.GOOS,
			System:   runtime.GOOS + " " + runtime.GOARCH,
			Version:  runtime.Version(),
			Brand:    runtime.GOARCH,
			Model:    hostname,
			Language: language(),
		},
		Account: AccountInfo{AppID: appID, Version: appVersion},
		Network: "wired",
	}
}

func language() string {
	for _, key := range []string{"LC_ALL", "LC_MESSAGES", "LANG"} {
		if v := os.Getenv(key); v != "" {
			lang, _, _ := strings.Cut(v, ".")
			return strings.ReplaceAll(lang, "_", "-")
		}
	}
	return ""
}
