package scenefile

import (
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/gekko3d/tinyrt"
)

// Watcher reloads a scene file whenever it changes on disk. It watches the
// parent directory so editors that replace the file are picked up too.
type Watcher struct {
	path    string
	fs      *fsnotify.Watcher
	updates chan *File
	errors  chan error
	done    chan struct{}
	once    sync.Once
	wg      sync.WaitGroup
	logger  tinyrt.Logger
}

func Watch(path string, logger tinyrt.Logger) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	fsWatch, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsWatch.Add(filepath.Dir(abs)); err != nil {
		fsWatch.Close()
		return nil, err
	}
	w := &Watcher{
		path:    abs,
		fs:      fsWatch,
		updates: make(chan *File, 1),
		errors:  make(chan error, 1),
		done:    make(chan struct{}),
		logger:  tinyrt.OrNop(logger),
	}
	w.wg.Add(1)
	go w.run()
	return w, nil
}

// Updates delivers the latest successfully parsed file. Only the newest
// pending update is kept.
func (w *Watcher) Updates() <-chan *File { return w.updates }

// Errors delivers read and parse failures. Errors are dropped while one is pending.
func (w *Watcher) Errors() <-chan error { return w.errors }

func (w *Watcher) Close() error {
	var err error
	w.once.Do(func() {
		close(w.done)
		w.wg.Wait()
		err = w.fs.Close()
	})
	return err
}

func (w *Watcher) run() {
	defer w.wg.Done()
	for {
		select {
		case e, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if filepath.Clean(e.Name) != w.path {
				continue
			}
			if e.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			w.reload()

		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.report(err)

		case <-w.done:
			return
		}
	}
}

func (w *Watcher) reload() {
	f, err := Load(w.path)
	if err != nil {
		w.report(err)
		return
	}
	w.logger.Debugf("scenefile: reloaded %s (%d spheres)", w.path, len(f.Spheres))
	select {
	case <-w.updates:
	default:
	}
	select {
	case w.updates <- f:
	default:
	}
}

func (w *Watcher) report(err error) {
	if err == nil {
		return
	}
	w.logger.Warnf("scenefile: %v", err)
	select {
	case w.errors <- err:
	default:
	}
}
