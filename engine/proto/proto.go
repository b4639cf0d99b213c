// Package proto is the wire codec of master, game server and client.
//
// A frame is a message type followed by top-level fields, joined with '|'. A field holding a
// record joins its parts with '%'; RPC arguments are joined with '$', and an empty argument
// list is the literal "null". Frames are UTF-8 text.
//
// The delimiters cannot be escaped, so every encoding path refuses values that contain the
// delimiters of its own level or any enclosing level.
package proto

// MsgType is the type of message types, the first token of a frame
type MsgType string

const (
	// MT_CLIENT_CONNECTED registers a client with the master: version
	MT_CLIENT_CONNECTED MsgType = "Data_ClientConnected"
	// MT_REQUEST_GAME_SERVER_DETAILS asks the master for a game server: no fields
	MT_REQUEST_GAME_SERVER_DETAILS MsgType = "Request_GameServerDetails"
	// MT_ANSWER_GAME_SERVER_DETAILS routes a client: ip, port, or NoServersFound
	MT_ANSWER_GAME_SERVER_DETAILS MsgType = "Answer_GameServerDetails"
	// MT_GAME_SERVER_CONNECTED registers a game server with the master: version
	MT_GAME_SERVER_CONNECTED MsgType = "Data_GameServerConnected"
	// MT_GAME_SERVER_PORT gives a game server its allocated port
	MT_GAME_SERVER_PORT MsgType = "Data_GameServerPort"
	// MT_GAME_SERVER_INFO carries the population (game server to master)
	// or the assigned connection id (game server to client)
	MT_GAME_SERVER_INFO MsgType = "Data_GameServerInfo"
	// MT_PLAYER_DETAILS registers a player with a game server: display name
	MT_PLAYER_DETAILS MsgType = "Data_PlayerDetails"
	// MT_PLAYER_UPDATE is the older form of a client avatar update: fields of the sender's avatar
	MT_PLAYER_UPDATE MsgType = "Data_PlayerUpdate"
	// MT_INITIALIZE_ENTITY creates one entity: id%type%fields...
	MT_INITIALIZE_ENTITY MsgType = "Data_InitializeEntity"
	// MT_INITIALIZE_ALL_ENTITIES creates the whole world: one record per field
	MT_INITIALIZE_ALL_ENTITIES MsgType = "Data_InitializeAllEntities"
	// MT_UPDATE_ENTITY updates one entity: id, fields joined with '%'
	MT_UPDATE_ENTITY MsgType = "Data_UpdateEntity"
	// MT_ENTITY_DESTROY destroys one entity: id
	MT_ENTITY_DESTROY MsgType = "Data_EntityDestroy"
	// MT_CLIENT_RPC asks the game server to run an entity method: id, method%args
	MT_CLIENT_RPC MsgType = "Data_ClientRPC"
	// MT_EXECUTE_RPC tells clients to run an entity method: id, method%args
	MT_EXECUTE_RPC MsgType = "Data_ExecuteRPC"
	// MT_INCORRECT_VERSION_NUMBER rejects a peer with another protocol version
	MT_INCORRECT_VERSION_NUMBER MsgType = "Error_IncorrectVersionNumber"
)

const (
	// FieldSep joins top-level fields
	FieldSep = "|"
	// RecordSep joins the parts of a record
	RecordSep = "%"
	// ArgSep joins RPC arguments
	ArgSep = "$"
	// NullArgs stands for an empty argument list
	NullArgs = "null"
	// NoServersFound is the negative answer to a game server request
	NoServersFound = "NoServersFound"
	// DiagnosticPrefix starts the free-text reply to a malformed message
	DiagnosticPrefix = "Error: received message invalid "
)
