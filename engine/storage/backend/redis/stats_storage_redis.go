package statsstorageredis

import (
	"io"
	"sort"
	"strings"

	"github.com/garyburd/redigo/redis"
	"github.com/pkg/errors"
	"github.com/vmihailenco/msgpack"
	. "github.com/xiaonanln/fpsworld/engine/storage/storage_common"
)

const keyPrefix = "PlayerStats$"

type redisStatsStorage struct {
	c redis.Conn
}

// OpenRedis opens redis as player stats storage
//
// url is either host:port or a redis:// URL
func OpenRedis(url string, dbindex int) (Backend, error) {
	var c redis.Conn
	var err error
	if strings.HasPrefix(url, "redis://") {
		c, err = redis.DialURL(url)
	} else {
		c, err = redis.Dial("tcp", url)
	}
	if err != nil {
		return nil, errors.Wrap(err, "redis dail failed")
	}

	if _, err := c.Do("SELECT", dbindex); err != nil {
		c.Close()
		return nil, errors.Wrap(err, "redis select db failed")
	}

	return &redisStatsStorage{
		c: c,
	}, nil
}

func statsKey(name string) string {
	return keyPrefix + name
}

func (ss *redisStatsStorage) List() ([]string, error) {
	keyMatch := keyPrefix + "*"
	cursor := interface{}("0")
	var names []string
	for {
		r, err := redis.Values(ss.c.Do("SCAN", cursor, "MATCH", keyMatch, "COUNT", 1000))
		if err != nil {
			return nil, err
		}
		keys, err := redis.Strings(r[1], nil)
		if err != nil {
			return nil, err
		}
		for _, key := range keys {
			names = append(names, key[len(keyPrefix):])
		}
		cursor = r[0]
		if isZeroCursor(cursor) {
			break
		}
	}
	sort.Strings(names)
	return names, nil
}

func isZeroCursor(c interface{}) bool {
	b, ok := c.([]byte)
	return ok && string(b) == "0"
}

func (ss *redisStatsStorage) Write(stats *PlayerStats) error {
	if stats.Name == "" {
		return errors.Errorf("player stats without name")
	}
	b, err := msgpack.Marshal(stats)
	if err != nil {
		return err
	}

	_, err = ss.c.Do("SET", statsKey(stats.Name), b)
	return err
}

func (ss *redisStatsStorage) Read(name string) (*PlayerStats, error) {
	b, err := redis.Bytes(ss.c.Do("GET", statsKey(name)))
	if err == redis.ErrNil {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	var stats PlayerStats
	if err = msgpack.Unmarshal(b, &stats); err != nil {
		return nil, errors.Wrapf(err, "corrupted stats of %s", name)
	}
	return &stats, nil
}

func (ss *redisStatsStorage) Close() {
	ss.c.Close()
}

func (ss *redisStatsStorage) IsEOF(err error) bool {
	err = errors.Cause(err)
	return err == io.EOF || err == io.ErrUnexpectedEOF
}
