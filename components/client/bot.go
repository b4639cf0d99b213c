package client

import (
	"math/rand"

	"github.com/xiaonanln/fpsworld/engine/consts"
	"github.com/xiaonanln/fpsworld/engine/entities"
	"github.com/xiaonanln/fpsworld/engine/entity"
	"github.com/xiaonanln/fpsworld/engine/gwlog"
)

const (
	botWanderRadius = 20.0
	botStep         = 0.25
)

// Bot drives the avatar of a ClientService: it wanders around the spawn point and
// occasionally interacts, switches weapons or reports its speed
type Bot struct {
	cs   *ClientService
	rand *rand.Rand
	goal entity.Vector3
}

// NewBot attaches a bot to cs. The bot acts from cs's tick loop.
func NewBot(cs *ClientService, seed int64) *Bot {
	bot := &Bot{
		cs:   cs,
		rand: rand.New(rand.NewSource(seed)),
		goal: entities.SpawnPoint,
	}
	cs.OnTick(bot.act)
	return bot
}

func (bot *Bot) act() {
	avatar := bot.cs.Avatar()
	if avatar == nil || avatar.Dead {
		return
	}
	bot.move(avatar)

	switch n := bot.rand.Intn(consts.TICK_RATE * 4); {
	case n == 0:
		bot.call(avatar, "TryInteract", float32(avatar.Position.X), float32(avatar.Position.Y), float32(avatar.Position.Z), 0, avatar.Weapon)
	case n == 1:
		bot.call(avatar, "SwitchWeapon", bot.rand.Intn(consts.PLAYER_WEAPON_SLOTS))
	case n == 2:
		bot.call(avatar, "ReportSpeed", float32(botStep*consts.TICK_RATE))
	}
}

// move walks the avatar one step towards its goal and picks a new goal on arrival
func (bot *Bot) move(avatar *entities.PlayerAvatar) {
	d := bot.goal.Sub(avatar.Position)
	dist := bot.goal.DistanceTo(avatar.Position)
	if dist <= botStep {
		avatar.Position = bot.goal
		bot.goal = entities.SpawnPoint.Add(entity.Vector3{
			X: entity.Coord((bot.rand.Float64()*2 - 1) * botWanderRadius),
			Z: entity.Coord((bot.rand.Float64()*2 - 1) * botWanderRadius),
		})
		return
	}
	avatar.Position = avatar.Position.Add(d.Mul(botStep / dist))
	avatar.Yaw = float32(bot.rand.Intn(360))
}

func (bot *Bot) call(avatar *entities.PlayerAvatar, method string, args ...interface{}) {
	if err := bot.cs.CallServer(avatar.ID(), method, args...); err != nil {
		gwlog.Debugf("%s: %s: %s", bot.cs, method, err)
	}
}
