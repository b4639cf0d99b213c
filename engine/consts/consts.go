package consts

import "time"

// Protocol
const (
	// VERSION is the protocol version exchanged in Data_ClientConnected and Data_GameServerConnected
	VERSION = "1.0"
	// TICK_RATE is the number of replication ticks per second
	TICK_RATE = 64
	// MAX_CONNECTIONS is the maximum number of peers a single host accepts
	MAX_CONNECTIONS = 100
)

// Tunable Options
const (
	// For Underlying Networking
	// BUFFERED_READ_BUFFSIZE is the read buffer size for buffered transport connections
	BUFFERED_READ_BUFFSIZE = 16384
	// BUFFERED_WRITE_BUFFSIZE is the write buffer size for buffered transport connections
	BUFFERED_WRITE_BUFFSIZE = 16384
	// MAX_FRAME_SIZE is the largest payload a transport accepts in one frame
	MAX_FRAME_SIZE = 1024 * 1024
	// TRANSPORT_EVENT_QUEUE_WARN_LEN is the event backlog at which transports start warning
	TRANSPORT_EVENT_QUEUE_WARN_LEN = 10000
	// KCP_PING_INTERVAL is the keepalive interval of kcp sessions
	KCP_PING_INTERVAL = time.Second * 5
	// KCP_IDLE_TIMEOUT drops kcp sessions that were silent for this long
	KCP_IDLE_TIMEOUT = time.Second * 30

	// For Master
	// MASTER_PORT is the default master listening port
	MASTER_PORT = 3333
	// GAME_SERVER_FIRST_PORT is the first port of the default game server port pool
	GAME_SERVER_FIRST_PORT = 3334
	// GAME_SERVER_PORT_COUNT is the size of the default game server port pool
	GAME_SERVER_PORT_COUNT = 16
	// GAME_SERVER_CAPACITY is the maximum population routed to one game server
	GAME_SERVER_CAPACITY = 10
	// LAUNCH_COOLDOWN rate limits game server launches
	LAUNCH_COOLDOWN = time.Second * 5
	// MAX_LAUNCH_ATTEMPTS is how many launches may fail to produce a route before clients get NoServersFound
	MAX_LAUNCH_ATTEMPTS = 3

	// For Game Server
	// IDLE_SHUTDOWN_TIMEOUT is how long a game server stays up with zero population
	IDLE_SHUTDOWN_TIMEOUT = time.Minute
	// PICKUP_RESPAWN_DELAY is the default respawn delay of pickups
	PICKUP_RESPAWN_DELAY = time.Second * 15
	// RAGDOLL_LIFESPAN is how long a ragdoll stays in the world
	RAGDOLL_LIFESPAN = time.Second * 10
	// PLAYER_REVIVE_DELAY is the delay between a player death and the revive
	PLAYER_REVIVE_DELAY = time.Second * 3
	// INTERACT_RANGE is the maximum distance between a player and what it interacts with
	INTERACT_RANGE = 3.0
	// PLAYER_MAX_HEALTH is the health of a freshly spawned player
	PLAYER_MAX_HEALTH = 100
	// PLAYER_MAX_AMMO is the ammo a player can carry
	PLAYER_MAX_AMMO = 200
	// PLAYER_WEAPON_SLOTS is the number of weapons a player can switch between
	PLAYER_WEAPON_SLOTS = 3
	// PLAYER_MAX_SPEED is the highest speed a client may report
	PLAYER_MAX_SPEED = 50.0
	// DESTROYED_ENTITY_MEMORY is the number of recently destroyed entity ids remembered
	DESTROYED_ENTITY_MEMORY = 1024

	// For Storage
	// ASYNC_JOB_QUEUE_MAXLEN is the queue length of each async job worker
	ASYNC_JOB_QUEUE_MAXLEN = 10000
	// STORAGE_RETRY_INTERVAL is the wait before retrying a failed storage operation
	STORAGE_RETRY_INTERVAL = time.Second
)

// Debug Options
const (
	// DEBUG_PACKETS prints message send/recv debug logs
	DEBUG_PACKETS = false
	// DEBUG_ENTITIES prints entity create/destroy debug logs
	DEBUG_ENTITIES = false
	// DEBUG_RPC prints rpc dispatch debug logs
	DEBUG_RPC = false
	// DEBUG_SAVE_LOAD prints save & load debug logs
	DEBUG_SAVE_LOAD = false
)
