package common

import (
	"github.com/BurntSushi/toml"
)

// ProxyDescriptor is the "proxy descriptor" referenced by §3.4/§4.5.1/§4.5.4:
// either empty (direct connection) or a proxy to dial control and data
// connections through. ftpproto dials every non-empty Kind as SOCKS5.
type ProxyDescriptor struct {
	Kind     string // "", "socks5", "http"
	Address  string
	User     string
	Password string
}

// ConnectionProfile is the host-facing configuration for one Operation's
// FTP connection parameters (§3.4 "Operation owns: connection parameters").
// Loaded from TOML the way tonimelisma-onedrive-go loads its own local
// config, per SPEC_FULL.md's Configuration section -- this is not the
// "registry persistence" spec.md places out of scope; it is the one-shot
// input a host passes the engine when it starts an Operation.
type ConnectionProfile struct {
	Host                    string          `toml:"host"`
	Port                    int             `toml:"port"`
	User                    string          `toml:"user"`
	Password                string          `toml:"password"`
	Account                 string          `toml:"account"`
	InitCommands            []string        `toml:"init_commands"`
	UsePassiveMode          bool            `toml:"use_passive_mode"`
	UseExplicitTLS          bool            `toml:"use_explicit_tls"`
	UseImplicitTLS          bool            `toml:"use_implicit_tls"`
	ExplicitListCmd         string          `toml:"explicit_list_command"`
	ServerSystemHint        string          `toml:"server_system_hint"`
	Proxy                   ProxyDescriptor `toml:"proxy"`
	RetryLoginWithoutAsking bool            `toml:"retry_login_without_asking"`
	UseModeZCompression     bool            `toml:"use_mode_z_compression"`
}

// OperationParams is the parameter file for one bulk operation: masks,
// conflict policies (§6.3) and source/target roots.
type OperationParams struct {
	SourcePath     string             `toml:"source_path"`
	TargetPath     string             `toml:"target_path"`
	WorkerCount    int                `toml:"worker_count"`
	TransferMode   TransferModeConfig `toml:"transfer_mode"`
	DownloadPolicy PolicyDefaults     `toml:"download_policy"`
	UploadPolicy   PolicyDefaults     `toml:"upload_policy"`
}

func LoadConnectionProfile(path string) (ConnectionProfile, error) {
	var p ConnectionProfile
	_, err := toml.DecodeFile(path, &p)
	return p, err
}

func LoadOperationParams(path string) (OperationParams, error) {
	var p OperationParams
	_, err := toml.DecodeFile(path, &p)
	return p, err
}
