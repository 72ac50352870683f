package config

// Keys used to read the node's own configuration out of a Store. Kept as
// constants so CLI flag binding (cli.go) and defaults below stay in sync
// with what components actually read.
const (
	KeyNodeID           = "node.id"
	KeyListenAddr        = "node.listen_addr"
	KeyTransport         = "node.transport" // "tcp" or "websocket"
	KeyGenesisPath       = "node.genesis_path"
	KeyCertPath          = "node.cert_path"
	KeyPrivateKeyPath    = "node.private_key_path"
	KeyBootstrapAnchors  = "node.bootstrap_anchors"
	KeyNAEndpoint        = "node.na_endpoint"
	KeyLogLevel          = "log.level"
	KeyMetricsListenAddr = "metrics.listen_addr"
	KeyDataDir           = "node.data_dir"
	KeyTrustedControlKeysPath = "control.trusted_keys_path"
)

// NodeConfig is the resolved, typed view of a node's configuration, read
// once at startup from a Store.
type NodeConfig struct {
	NodeID          string
	ListenAddr      string
	Transport       string
	GenesisPath     string
	CertPath        string
	PrivateKeyPath  string
	BootstrapAnchors []string
	NAEndpoint      string
	LogLevel        string
	MetricsListenAddr string
	DataDir         string
	TrustedControlKeysPath string
}

// ApplyDefaults records this package's documented defaults onto store,
// before any configuration file or CLI flag is read.
func ApplyDefaults(store *Store) {
	store.SetDefault(KeyListenAddr, "0.0.0.0:7000")
	store.SetDefault(KeyTransport, "websocket")
	store.SetDefault(KeyLogLevel, "info")
	store.SetDefault(KeyMetricsListenAddr, "127.0.0.1:9100")
	store.SetDefault(KeyDataDir, "./data")
	store.SetDefault(KeyTrustedControlKeysPath, "./data/trusted_control_keys.json")
}

// LoadNodeConfig resolves a NodeConfig from store, after ApplyDefaults and
// ReadInConfig have already run.
func LoadNodeConfig(store *Store) NodeConfig {
	return NodeConfig{
		NodeID:            store.String(KeyNodeID),
		ListenAddr:        store.String(KeyListenAddr),
		Transport:         store.String(KeyTransport),
		GenesisPath:       store.String(KeyGenesisPath),
		CertPath:          store.String(KeyCertPath),
		PrivateKeyPath:    store.String(KeyPrivateKeyPath),
		BootstrapAnchors:  store.StringSlice(KeyBootstrapAnchors),
		NAEndpoint:        store.String(KeyNAEndpoint),
		LogLevel:          store.String(KeyLogLevel),
		MetricsListenAddr: store.String(KeyMetricsListenAddr),
		DataDir:           store.String(KeyDataDir),
		TrustedControlKeysPath: store.String(KeyTrustedControlKeysPath),
	}
}
