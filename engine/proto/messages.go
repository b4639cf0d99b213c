package proto

import (
	"strconv"

	"github.com/pkg/errors"
	"github.com/xiaonanln/fpsworld/engine/common"
)

// EntityRecord is the initialize form of an entity: id%type%fields...
type EntityRecord struct {
	ID     common.EntityID
	Type   string
	Fields []string
}

// Encode joins the record with '%'
func (r EntityRecord) Encode() (string, error) {
	parts := make([]string, 0, 2+len(r.Fields))
	parts = append(parts, r.ID.String(), r.Type)
	parts = append(parts, r.Fields...)
	return JoinRecord(parts...)
}

// ParseEntityRecord parses an id%type%fields... record
func ParseEntityRecord(s string) (EntityRecord, error) {
	parts := SplitRecord(s)
	if len(parts) < 2 || parts[1] == "" {
		return EntityRecord{}, errors.Wrapf(ErrMalformedMessage, "entity record %q", s)
	}
	id, err := common.ParseEntityID(parts[0])
	if err != nil {
		return EntityRecord{}, errors.Wrap(ErrMalformedMessage, err.Error())
	}
	return EntityRecord{ID: id, Type: parts[1], Fields: parts[2:]}, nil
}

// RPCCall addresses a method of an entity with raw arguments
type RPCCall struct {
	EntityID common.EntityID
	Method   string
	Args     []string
}

func (c RPCCall) encode(mt MsgType) (Message, error) {
	args, err := JoinArgs(c.Args)
	if err != nil {
		return Message{}, err
	}
	payload, err := JoinRecord(c.Method, args)
	if err != nil {
		return Message{}, err
	}
	return NewMessage(mt, c.EntityID.String(), payload), nil
}

func parseRPCCall(m Message) (RPCCall, error) {
	if err := m.Expect(2); err != nil {
		return RPCCall{}, err
	}
	id, err := common.ParseEntityID(m.Fields[0])
	if err != nil {
		return RPCCall{}, errors.Wrap(ErrMalformedMessage, err.Error())
	}
	parts := SplitRecord(m.Fields[1])
	if len(parts) != 2 || parts[0] == "" {
		return RPCCall{}, errors.Wrapf(ErrMalformedMessage, "%s: rpc payload %q", m.Type, m.Fields[1])
	}
	return RPCCall{EntityID: id, Method: parts[0], Args: SplitArgs(parts[1])}, nil
}

// ClientConnected builds Data_ClientConnected|version
func ClientConnected(version string) Message {
	return NewMessage(MT_CLIENT_CONNECTED, version)
}

// GameServerConnected builds Data_GameServerConnected|version
func GameServerConnected(version string) Message {
	return NewMessage(MT_GAME_SERVER_CONNECTED, version)
}

// ParseVersion reads the version of Data_ClientConnected and Data_GameServerConnected
func ParseVersion(m Message) (string, error) {
	if err := m.Expect(1); err != nil {
		return "", err
	}
	return m.Fields[0], nil
}

// RequestGameServerDetails builds Request_GameServerDetails
func RequestGameServerDetails() Message {
	return NewMessage(MT_REQUEST_GAME_SERVER_DETAILS)
}

// AnswerGameServerDetails builds Answer_GameServerDetails|ip|port
func AnswerGameServerDetails(ip string, port int) Message {
	return NewMessage(MT_ANSWER_GAME_SERVER_DETAILS, ip, strconv.Itoa(port))
}

// AnswerNoServersFound builds Answer_GameServerDetails|NoServersFound
func AnswerNoServersFound() Message {
	return NewMessage(MT_ANSWER_GAME_SERVER_DETAILS, NoServersFound)
}

// ParseAnswerGameServerDetails reads a routing answer; found is false for NoServersFound
func ParseAnswerGameServerDetails(m Message) (ip string, port int, found bool, err error) {
	if len(m.Fields) == 1 && m.Fields[0] == NoServersFound {
		return "", 0, false, nil
	}
	if err = m.Expect(2); err != nil {
		return
	}
	port, err = ParseInt(m.Fields[1])
	if err != nil {
		return
	}
	return m.Fields[0], port, true, nil
}

// GameServerPort builds Data_GameServerPort|port
func GameServerPort(port int) Message {
	return NewMessage(MT_GAME_SERVER_PORT, strconv.Itoa(port))
}

// GameServerInfo builds Data_GameServerInfo|n, n being a population or a connection id
func GameServerInfo(n int) Message {
	return NewMessage(MT_GAME_SERVER_INFO, strconv.Itoa(n))
}

// ParseIntField reads the single int field of Data_GameServerPort and Data_GameServerInfo
func ParseIntField(m Message) (int, error) {
	if err := m.Expect(1); err != nil {
		return 0, err
	}
	return ParseInt(m.Fields[0])
}

// PlayerDetails builds Data_PlayerDetails|name
func PlayerDetails(name string) Message {
	return NewMessage(MT_PLAYER_DETAILS, name)
}

// ParsePlayerDetails reads the display name
func ParsePlayerDetails(m Message) (string, error) {
	if err := m.Expect(1); err != nil {
		return "", err
	}
	return m.Fields[0], nil
}

// InitializeEntity builds Data_InitializeEntity|id%type%fields...
func InitializeEntity(r EntityRecord) (Message, error) {
	rec, err := r.Encode()
	if err != nil {
		return Message{}, err
	}
	return NewMessage(MT_INITIALIZE_ENTITY, rec), nil
}

// ParseInitializeEntity reads the record of Data_InitializeEntity
func ParseInitializeEntity(m Message) (EntityRecord, error) {
	if err := m.Expect(1); err != nil {
		return EntityRecord{}, err
	}
	return ParseEntityRecord(m.Fields[0])
}

// InitializeAllEntities builds Data_InitializeAllEntities|rec|rec...; no records gives just the type
func InitializeAllEntities(records []EntityRecord) (Message, error) {
	fields := make([]string, 0, len(records))
	for _, r := range records {
		rec, err := r.Encode()
		if err != nil {
			return Message{}, err
		}
		fields = append(fields, rec)
	}
	return NewMessage(MT_INITIALIZE_ALL_ENTITIES, fields...), nil
}

// ParseInitializeAllEntities reads every record of Data_InitializeAllEntities
func ParseInitializeAllEntities(m Message) ([]EntityRecord, error) {
	records := make([]EntityRecord, 0, len(m.Fields))
	for _, f := range m.Fields {
		if f == "" {
			continue // "Data_InitializeAllEntities|" from older servers
		}
		r, err := ParseEntityRecord(f)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, nil
}

// UpdateEntity builds Data_UpdateEntity|id|f%f...
func UpdateEntity(id common.EntityID, fields []string) (Message, error) {
	rec, err := JoinRecord(fields...)
	if err != nil {
		return Message{}, err
	}
	return NewMessage(MT_UPDATE_ENTITY, id.String(), rec), nil
}

// ParseUpdateEntity reads Data_UpdateEntity
func ParseUpdateEntity(m Message) (common.EntityID, []string, error) {
	if err := m.Expect(2); err != nil {
		return 0, nil, err
	}
	id, err := common.ParseEntityID(m.Fields[0])
	if err != nil {
		return 0, nil, errors.Wrap(ErrMalformedMessage, err.Error())
	}
	return id, SplitRecord(m.Fields[1]), nil
}

// PlayerUpdate builds Data_PlayerUpdate|f%f...
func PlayerUpdate(fields []string) (Message, error) {
	rec, err := JoinRecord(fields...)
	if err != nil {
		return Message{}, err
	}
	return NewMessage(MT_PLAYER_UPDATE, rec), nil
}

// ParsePlayerUpdate reads Data_PlayerUpdate
func ParsePlayerUpdate(m Message) ([]string, error) {
	if err := m.Expect(1); err != nil {
		return nil, err
	}
	return SplitRecord(m.Fields[0]), nil
}

// EntityDestroy builds Data_EntityDestroy|id
func EntityDestroy(id common.EntityID) Message {
	return NewMessage(MT_ENTITY_DESTROY, id.String())
}

// ParseEntityDestroy reads Data_EntityDestroy
func ParseEntityDestroy(m Message) (common.EntityID, error) {
	if err := m.Expect(1); err != nil {
		return 0, err
	}
	id, err := common.ParseEntityID(m.Fields[0])
	if err != nil {
		return 0, errors.Wrap(ErrMalformedMessage, err.Error())
	}
	return id, nil
}

// ClientRPC builds Data_ClientRPC|id|method%args
func ClientRPC(c RPCCall) (Message, error) {
	return c.encode(MT_CLIENT_RPC)
}

// ExecuteRPC builds Data_ExecuteRPC|id|method%args
func ExecuteRPC(c RPCCall) (Message, error) {
	return c.encode(MT_EXECUTE_RPC)
}

// ParseRPCCall reads Data_ClientRPC and Data_ExecuteRPC
func ParseRPCCall(m Message) (RPCCall, error) {
	return parseRPCCall(m)
}

// IncorrectVersionNumber builds Error_IncorrectVersionNumber
func IncorrectVersionNumber() Message {
	return NewMessage(MT_INCORRECT_VERSION_NUMBER)
}
