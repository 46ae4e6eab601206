package hardlinkfilemap

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/autobrr/dupelink/pkg/linkfs"
)

type HardlinkFileMap struct {
	// hardlinkFileMap maps FileID to the paths seen with that identity, in scan order
	hardlinkFileMap map[linkfs.FileID][]string
	// preExisting counts paths whose identity had already been recorded
	preExisting int
	// unavailable counts paths whose identity could not be queried
	unavailable int

	fs  linkfs.FS
	log *logrus.Entry
	mu  sync.Mutex
}
