package config

import (
	"testing"
	"time"

	"github.com/bmizerany/assert"
	"github.com/xiaonanln/fpsworld/engine/consts"
	"github.com/xiaonanln/fpsworld/engine/gwlog"
)

func init() {
	SetConfigFile("../../fpsworld.ini.sample")
}

func TestLoad(t *testing.T) {
	config := Get()
	gwlog.Debugf("fpsworld config: \n%s", DumpPretty(config))
	if config == nil {
		t.FailNow()
	}
	assert.Equal(t, 3333, config.Master.Port)
	assert.Equal(t, 16, len(config.Master.Ports))
	assert.Equal(t, 3334, config.Master.Ports[0])
	assert.Equal(t, 3349, config.Master.Ports[15])
	assert.Equal(t, 5*time.Second, config.Master.LaunchCooldown)
	assert.Equal(t, []string{"-configfile", "fpsworld.ini"}, config.Master.GameServerArgs)
	assert.Equal(t, time.Minute, config.GameServer.IdleTimeout)
	assert.Equal(t, "world.yaml", config.GameServer.WorldFile)
	assert.Equal(t, "filesystem", config.Storage.Type)
	assert.Equal(t, 13333, config.Master.HTTPPort)
}

func TestReload(t *testing.T) {
	Get()
	config := Reload()
	assert.Equal(t, "info", config.Master.LogLevel)
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, consts.MASTER_PORT, cfg.Master.Port)
	assert.Equal(t, consts.GAME_SERVER_PORT_COUNT, len(cfg.Master.Ports))
	assert.Equal(t, consts.GAME_SERVER_CAPACITY, cfg.Master.Capacity)
	assert.Equal(t, "kcp", cfg.Client.Transport)
	assert.Equal(t, true, cfg.GameServer.LogStderr)
}

func TestParseRejectsUnknownKey(t *testing.T) {
	_, err := Parse([]byte("[master]\nbogus = 1\n"))
	assert.NotEqual(t, nil, err)
}

func TestParseRejectsPoolWithMasterPort(t *testing.T) {
	_, err := Parse([]byte("[master]\nport = 4000\nports = 3999-4001\n"))
	assert.NotEqual(t, nil, err)
}

func TestParseRedisNeedsUrl(t *testing.T) {
	_, err := Parse([]byte("[storage]\ntype = redis\n"))
	assert.NotEqual(t, nil, err)

	cfg, err := Parse([]byte("[storage]\ntype = redis\nurl = 127.0.0.1:6379\ndb = 2\n"))
	assert.Equal(t, nil, err)
	assert.Equal(t, 2, cfg.Storage.DB)
}

func TestParsePorts(t *testing.T) {
	ports, err := ParsePorts("4000, 3334-3336,3335")
	assert.Equal(t, nil, err)
	assert.Equal(t, []int{3334, 3335, 3336, 4000}, ports)

	_, err = ParsePorts("10-5")
	assert.NotEqual(t, nil, err)
	_, err = ParsePorts("abc")
	assert.NotEqual(t, nil, err)
}
