package statsstoragefilesystem

import (
	"encoding/base64"
	"io/ioutil"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/vmihailenco/msgpack"
	"github.com/xiaonanln/fpsworld/engine/consts"
	"github.com/xiaonanln/fpsworld/engine/gwlog"
	. "github.com/xiaonanln/fpsworld/engine/storage/storage_common"
)

const filePrefix = "PlayerStats$"

type fileSystemStatsStorage struct {
	directory string
}

func getFileName(name string) string {
	return filePrefix + base64.URLEncoding.EncodeToString([]byte(name))
}

func (ss *fileSystemStatsStorage) getFilePath(name string) string {
	return filepath.Join(ss.directory, getFileName(name))
}

func (ss *fileSystemStatsStorage) Write(stats *PlayerStats) error {
	if stats.Name == "" {
		return errors.Errorf("player stats without name")
	}
	saveFile := ss.getFilePath(stats.Name)
	data, err := msgpack.Marshal(stats)
	if err != nil {
		return err
	}

	if consts.DEBUG_SAVE_LOAD {
		gwlog.Debugf("Saving to file %s: %+v", saveFile, *stats)
	}
	// write then rename so a crash never leaves a truncated record
	tmpFile := saveFile + ".tmp"
	if err := ioutil.WriteFile(tmpFile, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmpFile, saveFile)
}

func (ss *fileSystemStatsStorage) Read(name string) (*PlayerStats, error) {
	data, err := ioutil.ReadFile(ss.getFilePath(name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var stats PlayerStats
	if err := msgpack.Unmarshal(data, &stats); err != nil {
		return nil, errors.Wrapf(err, "corrupted stats of %s", name)
	}
	return &stats, nil
}

func (ss *fileSystemStatsStorage) List() ([]string, error) {
	files, err := filepath.Glob(filepath.Join(ss.directory, filePrefix+"*"))
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(files))
	for _, fpath := range files {
		_, fn := filepath.Split(fpath)
		if strings.HasSuffix(fn, ".tmp") {
			continue
		}
		b, err := base64.URLEncoding.DecodeString(fn[len(filePrefix):])
		if err != nil {
			gwlog.TraceError("fail to parse file %s", fpath)
			continue
		}
		names = append(names, string(b))
	}
	sort.Strings(names)
	return names, nil
}

func (ss *fileSystemStatsStorage) Close() {
	// need to do nothing
}

func (ss *fileSystemStatsStorage) IsEOF(err error) bool {
	return false
}

// OpenDirectory opens a directory as player stats storage, creating it if missing
func OpenDirectory(directory string) (Backend, error) {
	if err := os.MkdirAll(directory, 0755); err != nil {
		return nil, errors.Wrap(err, "create storage directory failed")
	}

	return &fileSystemStatsStorage{
		directory: directory,
	}, nil
}
