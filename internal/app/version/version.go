// Package version exposes build metadata. The values are set at link time:
//
//	go build -ldflags "-X trafficwatch/internal/app/version.buildVersion=v1.2.0"
package version

type Info struct {
	Version string `json:"version"`
	BuiltAt string `json:"built_at,omitempty"`
}

var (
	buildVersion = "dev"
	builtAt      = ""
)

func BuildVersion() string {
	return buildVersion
}

func BuiltAt() string {
	return builtAt
}

func GetInfo() Info {
	return Info{
		Version: BuildVersion(),
		BuiltAt: BuiltAt(),
	}
}
