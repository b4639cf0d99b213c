package config

import (
	"encoding/json"
	"path"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-ini/ini"
	"github.com/pkg/errors"
	"github.com/xiaonanln/fpsworld/engine/consts"
	"github.com/xiaonanln/fpsworld/engine/gwlog"
)

const (
	_DEFAULT_CONFIG_FILE  = "fpsworld.ini"
	_DEFAULT_LOCALHOST_IP = "127.0.0.1"
	_DEFAULT_HTTP_IP      = "127.0.0.1"
	_DEFAULT_LOG_LEVEL    = "debug"
	_DEFAULT_TRANSPORT    = "kcp"
	_DEFAULT_STORAGE_DIR  = "_player_stats"
)

var (
	configFilePath = _DEFAULT_CONFIG_FILE
	fpsWorldConfig *FPSWorldConfig
	configLock     sync.Mutex
)

// LogConfig is shared by all process roles
type LogConfig struct {
	LogFile   string
	LogStderr bool
	LogLevel  string
	HTTPIp    string
	HTTPPort  int
}

// MasterConfig defines fields of master config
type MasterConfig struct {
	LogConfig
	Ip                string // listening ip
	Port              int
	AdvertiseIp       string // ip given to clients in Answer_GameServerDetails
	Transport         string
	Ports             []int // game server port pool
	Capacity          int
	LaunchCooldown    time.Duration
	MaxLaunchAttempts int
	GameServerBinary  string
	GameServerArgs    []string
}

// GameServerConfig defines fields of game server config
type GameServerConfig struct {
	LogConfig
	MasterIp       string
	MasterPort     int
	Transport      string
	MaxConnections int
	IdleTimeout    time.Duration
	WorldFile      string
}

// ClientConfig defines fields of the bot client config
type ClientConfig struct {
	LogConfig
	MasterIp   string
	MasterPort int
	Transport  string
	Name       string
}

// StorageConfig defines fields of storage config
type StorageConfig struct {
	Type      string // Type of storage (filesystem, redis)
	Directory string // Directory of filesystem storage (filesystem)
	Url       string // Connection URL (redis)
	DB        int    // Database index (redis)
}

// FPSWorldConfig defines the total config file structure
type FPSWorldConfig struct {
	Master     MasterConfig
	GameServer GameServerConfig
	Client     ClientConfig
	Storage    StorageConfig
}

// SetConfigFile sets the config file path (fpsworld.ini by default)
func SetConfigFile(f string) {
	configFilePath = f
}

// GetConfigDir returns the directory of fpsworld.ini
func GetConfigDir() string {
	dir, _ := path.Split(configFilePath)
	return dir
}

// GetConfigFilePath returns the config file path
func GetConfigFilePath() string {
	return configFilePath
}

// Get returns the total config, reading the config file on first use
func Get() *FPSWorldConfig {
	configLock.Lock()
	defer configLock.Unlock()
	if fpsWorldConfig == nil {
		cfg, err := Load(configFilePath)
		if err != nil {
			gwlog.Panicf("read config %s failed: %+v", configFilePath, err)
		}
		fpsWorldConfig = cfg
	}
	return fpsWorldConfig
}

// Reload forces the config file to be read again
func Reload() *FPSWorldConfig {
	configLock.Lock()
	fpsWorldConfig = nil
	configLock.Unlock()

	return Get()
}

// GetMaster returns the master config
func GetMaster() *MasterConfig {
	return &Get().Master
}

// GetGameServer returns the game server config
func GetGameServer() *GameServerConfig {
	return &Get().GameServer
}

// GetClient returns the client config
func GetClient() *ClientConfig {
	return &Get().Client
}

// GetStorage returns the storage config
func GetStorage() *StorageConfig {
	return &Get().Storage
}

// DumpPretty format config to string in pretty format
func DumpPretty(cfg interface{}) string {
	s, err := json.MarshalIndent(cfg, "", "    ")
	if err != nil {
		return err.Error()
	}
	return string(s)
}

// Default returns the config used when no file provides values
func Default() *FPSWorldConfig {
	cfg, err := Parse([]byte{})
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads the config file at path
func Load(path string) (*FPSWorldConfig, error) {
	gwlog.Infof("Using config file: %s", path)
	iniFile, err := ini.Load(path)
	if err != nil {
		return nil, errors.Wrap(err, "load ini")
	}
	return read(iniFile)
}

// Parse reads config from ini formatted data
func Parse(data []byte) (*FPSWorldConfig, error) {
	iniFile, err := ini.Load(data)
	if err != nil {
		return nil, errors.Wrap(err, "parse ini")
	}
	return read(iniFile)
}

func read(iniFile *ini.File) (*FPSWorldConfig, error) {
	var config FPSWorldConfig
	readMasterConfig(&config.Master)
	readGameServerConfig(&config.GameServer)
	readClientConfig(&config.Client)
	readStorageConfig(&config.Storage)

	for _, sec := range iniFile.Sections() {
		var err error
		switch strings.ToLower(sec.Name()) {
		case strings.ToLower(ini.DefaultSection):
			if len(sec.Keys()) > 0 {
				err = errors.Errorf("keys outside of any section: %v", sec.KeyStrings())
			}
		case "master":
			err = _readMasterConfig(sec, &config.Master)
		case "gameserver":
			err = _readGameServerConfig(sec, &config.GameServer)
		case "client":
			err = _readClientConfig(sec, &config.Client)
		case "storage":
			err = _readStorageConfig(sec, &config.Storage)
		default:
			gwlog.Errorf("unknown section: %s", sec.Name())
		}
		if err != nil {
			return nil, errors.Wrapf(err, "section %s", sec.Name())
		}
	}

	if err := validateConfig(&config); err != nil {
		return nil, err
	}
	return &config, nil
}

func defaultLogConfig(lc *LogConfig, logFile string) {
	lc.LogFile = logFile
	lc.LogStderr = true
	lc.LogLevel = _DEFAULT_LOG_LEVEL
	lc.HTTPIp = _DEFAULT_HTTP_IP
	lc.HTTPPort = 0 // http server not enabled by default
}

// readLogKey consumes the keys shared by all roles, returning false for other keys
func readLogKey(key *ini.Key, lc *LogConfig) bool {
	switch strings.ToLower(key.Name()) {
	case "log_file":
		lc.LogFile = key.MustString(lc.LogFile)
	case "log_stderr":
		lc.LogStderr = key.MustBool(lc.LogStderr)
	case "log_level":
		lc.LogLevel = key.MustString(lc.LogLevel)
	case "http_ip":
		lc.HTTPIp = key.MustString(lc.HTTPIp)
	case "http_port":
		lc.HTTPPort = key.MustInt(lc.HTTPPort)
	default:
		return false
	}
	return true
}

func readMasterConfig(mc *MasterConfig) {
	defaultLogConfig(&mc.LogConfig, "master.log")
	mc.Ip = "0.0.0.0"
	mc.Port = consts.MASTER_PORT
	mc.AdvertiseIp = _DEFAULT_LOCALHOST_IP
	mc.Transport = _DEFAULT_TRANSPORT
	mc.Ports = make([]int, consts.GAME_SERVER_PORT_COUNT)
	for i := range mc.Ports {
		mc.Ports[i] = consts.GAME_SERVER_FIRST_PORT + i
	}
	mc.Capacity = consts.GAME_SERVER_CAPACITY
	mc.LaunchCooldown = consts.LAUNCH_COOLDOWN
	mc.MaxLaunchAttempts = consts.MAX_LAUNCH_ATTEMPTS
	mc.GameServerBinary = "gameserver"
}

func _readMasterConfig(sec *ini.Section, mc *MasterConfig) error {
	for _, key := range sec.Keys() {
		if readLogKey(key, &mc.LogConfig) {
			continue
		}
		switch strings.ToLower(key.Name()) {
		case "ip":
			mc.Ip = key.MustString(mc.Ip)
		case "port":
			mc.Port = key.MustInt(mc.Port)
		case "advertise_ip":
			mc.AdvertiseIp = key.MustString(mc.AdvertiseIp)
		case "transport":
			mc.Transport = key.MustString(mc.Transport)
		case "ports":
			ports, err := ParsePorts(key.String())
			if err != nil {
				return err
			}
			mc.Ports = ports
		case "capacity":
			mc.Capacity = key.MustInt(mc.Capacity)
		case "launch_cooldown":
			mc.LaunchCooldown = key.MustDuration(mc.LaunchCooldown)
		case "max_launch_attempts":
			mc.MaxLaunchAttempts = key.MustInt(mc.MaxLaunchAttempts)
		case "gameserver_binary":
			mc.GameServerBinary = key.MustString(mc.GameServerBinary)
		case "gameserver_args":
			mc.GameServerArgs = strings.Fields(key.String())
		default:
			return errors.Errorf("unknown key: %s", key.Name())
		}
	}
	return nil
}

func readGameServerConfig(gc *GameServerConfig) {
	defaultLogConfig(&gc.LogConfig, "gameserver.log")
	gc.MasterIp = _DEFAULT_LOCALHOST_IP
	gc.MasterPort = consts.MASTER_PORT
	gc.Transport = _DEFAULT_TRANSPORT
	gc.MaxConnections = consts.MAX_CONNECTIONS
	gc.IdleTimeout = consts.IDLE_SHUTDOWN_TIMEOUT
}

func _readGameServerConfig(sec *ini.Section, gc *GameServerConfig) error {
	for _, key := range sec.Keys() {
		if readLogKey(key, &gc.LogConfig) {
			continue
		}
		switch strings.ToLower(key.Name()) {
		case "master_ip":
			gc.MasterIp = key.MustString(gc.MasterIp)
		case "master_port":
			gc.MasterPort = key.MustInt(gc.MasterPort)
		case "transport":
			gc.Transport = key.MustString(gc.Transport)
		case "max_connections":
			gc.MaxConnections = key.MustInt(gc.MaxConnections)
		case "idle_timeout":
			gc.IdleTimeout = key.MustDuration(gc.IdleTimeout)
		case "world_file":
			gc.WorldFile = key.MustString(gc.WorldFile)
		default:
			return errors.Errorf("unknown key: %s", key.Name())
		}
	}
	return nil
}

func readClientConfig(cc *ClientConfig) {
	defaultLogConfig(&cc.LogConfig, "client.log")
	cc.MasterIp = _DEFAULT_LOCALHOST_IP
	cc.MasterPort = consts.MASTER_PORT
	cc.Transport = _DEFAULT_TRANSPORT
	cc.Name = "Bot"
}

func _readClientConfig(sec *ini.Section, cc *ClientConfig) error {
	for _, key := range sec.Keys() {
		if readLogKey(key, &cc.LogConfig) {
			continue
		}
		switch strings.ToLower(key.Name()) {
		case "master_ip":
			cc.MasterIp = key.MustString(cc.MasterIp)
		case "master_port":
			cc.MasterPort = key.MustInt(cc.MasterPort)
		case "transport":
			cc.Transport = key.MustString(cc.Transport)
		case "name":
			cc.Name = key.MustString(cc.Name)
		default:
			return errors.Errorf("unknown key: %s", key.Name())
		}
	}
	return nil
}

func readStorageConfig(sc *StorageConfig) {
	sc.Type = "filesystem"
	sc.Directory = _DEFAULT_STORAGE_DIR
}

func _readStorageConfig(sec *ini.Section, sc *StorageConfig) error {
	for _, key := range sec.Keys() {
		switch strings.ToLower(key.Name()) {
		case "type":
			sc.Type = key.MustString(sc.Type)
		case "directory":
			sc.Directory = key.MustString(sc.Directory)
		case "url":
			sc.Url = key.MustString(sc.Url)
		case "db":
			sc.DB = key.MustInt(sc.DB)
		default:
			return errors.Errorf("unknown key: %s", key.Name())
		}
	}
	return nil
}

// ParsePorts parses a port list like "3334-3337,4000"
func ParsePorts(s string) ([]int, error) {
	seen := map[int]bool{}
	var ports []int
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		lo, hi := part, part
		if i := strings.Index(part, "-"); i >= 0 {
			lo, hi = part[:i], part[i+1:]
		}
		from, err := strconv.Atoi(strings.TrimSpace(lo))
		if err != nil {
			return nil, errors.Wrapf(err, "invalid port %q", part)
		}
		to, err := strconv.Atoi(strings.TrimSpace(hi))
		if err != nil {
			return nil, errors.Wrapf(err, "invalid port %q", part)
		}
		if from > to {
			return nil, errors.Errorf("invalid port range %q", part)
		}
		for p := from; p <= to; p++ {
			if !seen[p] {
				seen[p] = true
				ports = append(ports, p)
			}
		}
	}
	sort.Ints(ports)
	return ports, nil
}

func validateConfig(config *FPSWorldConfig) error {
	mc := &config.Master
	if len(mc.Ports) == 0 {
		return errors.New("master: port pool is empty")
	}
	for _, p := range mc.Ports {
		if p <= 0 || p > 65535 {
			return errors.Errorf("master: invalid port %d", p)
		}
		if p == mc.Port {
			return errors.Errorf("master: port pool contains the master port %d", p)
		}
	}
	if mc.Capacity <= 0 {
		return errors.Errorf("master: invalid capacity %d", mc.Capacity)
	}
	for _, t := range []string{mc.Transport, config.GameServer.Transport, config.Client.Transport} {
		if t != "kcp" && t != "ws" {
			return errors.Errorf("unknown transport: %s", t)
		}
	}
	if config.Storage.Type != "filesystem" && config.Storage.Type != "redis" {
		return errors.Errorf("unknown storage type: %s", config.Storage.Type)
	}
	if config.Storage.Type == "redis" && config.Storage.Url == "" {
		return errors.New("storage: redis url is not set")
	}
	return nil
}
