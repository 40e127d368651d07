// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

//go:build linux || darwin

package ringq

import (
	"fmt"
	"os"
	"path/filepath"
	"unsafe"

	"golang.org/x/sys/unix"
)

// shmProvider is the default RegionProvider: named segments are plain files
// under /dev/shm (falling back to os.TempDir when /dev/shm isn't mounted),
// mapped with MAP_SHARED so every attacher sees the same physical pages.
type shmProvider struct {
	dir string
}

// DefaultRegionProvider returns the RegionProvider NewShared and Attach use
// when the caller doesn't supply WithRegionProvider.
func DefaultRegionProvider() RegionProvider {
	return &shmProvider{dir: shmDir()}
}

func shmDir() string {
	if info, err := os.Stat("/dev/shm"); err == nil && info.IsDir() {
		return "/dev/shm"
	}
	return os.TempDir()
}

func (p *shmProvider) path(name string) string {
	return filepath.Join(p.dir, "ringq_"+name)
}

func (p *shmProvider) CreateOrOpen(name string, size uintptr) (Region, bool, error) {
	path := p.path(name)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0600)
	created := err == nil
	if err != nil {
		if !os.IsExist(err) {
			return nil, false, fmt.Errorf("%w: create %s: %v", ErrRegion, path, err)
		}
		f, err = os.OpenFile(path, os.O_RDWR, 0600)
		if err != nil {
			return nil, false, fmt.Errorf("%w: open %s: %v", ErrRegion, path, err)
		}
	}

	if created {
		if err := f.Truncate(int64(size)); err != nil {
			f.Close()
			os.Remove(path)
			return nil, false, fmt.Errorf("%w: truncate %s: %v", ErrRegion, path, err)
		}
	} else if info, statErr := f.Stat(); statErr == nil && info.Size() < int64(size) {
		// Another process created the file but hasn't truncated it yet;
		// waitReady (region.go) is what actually blocks until its header
		// handshake finishes, this just makes sure the mapping below has
		// enough bytes to cover the header.
		if err := f.Truncate(int64(size)); err != nil {
			f.Close()
			return nil, false, fmt.Errorf("%w: truncate %s: %v", ErrRegion, path, err)
		}
	}

	mem, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, false, fmt.Errorf("%w: mmap %s: %v", ErrRegion, path, err)
	}
	return &shmRegion{f: f, mem: mem, path: path}, created, nil
}

func (p *shmProvider) AttachExisting(name string) (Region, error) {
	path := p.path(name)

	f, err := os.OpenFile(path, os.O_RDWR, 0600)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrRegion, path, err)
	}
	info, err := f.Stat()
	if err != nil || info.Size() < headerSize {
		f.Close()
		return nil, fmt.Errorf("%w: %s is too small to be a ringq segment", ErrRegion, path)
	}

	mem, err := unix.Mmap(int(f.Fd()), 0, int(info.Size()), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: mmap %s: %v", ErrRegion, path, err)
	}
	return &shmRegion{f: f, mem: mem, path: path}, nil
}

// shmRegion is a Region backed by an mmap'd file.
type shmRegion struct {
	f    *os.File
	mem  []byte
	path string
}

func (r *shmRegion) Base() unsafe.Pointer { return unsafe.Pointer(&r.mem[0]) }
func (r *shmRegion) Size() uintptr        { return uintptr(len(r.mem)) }

func (r *shmRegion) Close() error {
	err := unix.Munmap(r.mem)
	if cerr := r.f.Close(); err == nil {
		err = cerr
	}
	return err
}

func (r *shmRegion) Remove() error {
	return os.Remove(r.path)
}
