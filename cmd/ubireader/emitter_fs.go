package main

import (
	"io"
	"os"
	"path/filepath"
	"syscall"
	"time"
)

// dirEmitter is a concrete ubifs.Emitter that writes a walked tree out to
// a real directory, grounded on the interface boundary spec.md calls out
// explicitly: filesystem I/O lives entirely on this side of the Emitter,
// never inside the parsing library.
type dirEmitter struct {
	root string
}

func newDirEmitter(root string) *dirEmitter {
	return &dirEmitter{root: root}
}

func (e *dirEmitter) abs(p string) string {
	return filepath.Join(e.root, filepath.FromSlash(p))
}

func (e *dirEmitter) MakeDir(p string, mode uint32) error {
	return os.MkdirAll(e.abs(p), os.FileMode(mode)|0o700)
}

func (e *dirEmitter) MakeRegFile(p string, mode uint32, data io.Reader) error {
	f, err := os.OpenFile(e.abs(p), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, os.FileMode(mode)|0o600)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(f, data)
	return err
}

func (e *dirEmitter) MakeLink(p, target string) error {
	return os.Link(e.abs(target), e.abs(p))
}

func (e *dirEmitter) MakeSymlink(p, target string) error {
	return os.Symlink(target, e.abs(p))
}

func (e *dirEmitter) MakeDevice(p string, mode uint32, major, minor uint32) error {
	// mode carries the S_IFBLK/S_IFCHR bit set by ubifs.unixFileTypeBit;
	// syscall.Mknod wants the same encoding in its mode argument.
	dev := int(unixMakedev(major, minor))
	return syscall.Mknod(e.abs(p), mode, dev)
}

func (e *dirEmitter) MakeFifo(p string, mode uint32) error {
	return syscall.Mkfifo(e.abs(p), mode&0o7777)
}

func (e *dirEmitter) MakeSocket(p string, mode uint32) error {
	// a parsed socket inode cannot be meaningfully recreated outside its
	// original process; extraction creates an empty regular file as a
	// placeholder, same policy as most archive-extraction tools.
	f, err := os.OpenFile(e.abs(p), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, os.FileMode(mode)|0o600)
	if err != nil {
		return err
	}
	return f.Close()
}

func (e *dirEmitter) SetTimestamps(p string, atime, mtime, ctime time.Time) error {
	return os.Chtimes(e.abs(p), atime, mtime)
}

func (e *dirEmitter) SetPerms(p string, uid, gid, mode uint32) error {
	if err := os.Chmod(e.abs(p), os.FileMode(mode)); err != nil {
		return err
	}
	if os.Getuid() != 0 {
		// unprivileged extraction cannot chown; skip rather than fail
		// the whole walk over an unprivileged-but-expected error.
		return nil
	}
	return os.Chown(e.abs(p), int(uid), int(gid))
}

func unixMakedev(major, minor uint32) uint64 {
	return uint64(major&0xfff)<<8 | uint64(minor&0xff) | (uint64(major&0xfffff000) << 32) | (uint64(minor&0xffffff00) << 12)
}
