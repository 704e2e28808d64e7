package ubifs

import (
	"io"
	"log"
	"path"
	"strings"
	"time"
)

// Emitter receives the materialized filesystem tree one entry at a time.
// Implementations decide what "emit" means: write to disk, stream to a
// tar archive, populate a FUSE inode table. Modeled on the teacher's own
// split between walking a format and acting on what it finds (dirReader
// vs the caller in list_squashfs.go).
type Emitter interface {
	MakeDir(p string, mode uint32) error
	MakeRegFile(p string, mode uint32, data io.Reader) error
	MakeLink(p, target string) error
	MakeSymlink(p, target string) error
	MakeDevice(p string, mode uint32, major, minor uint32) error
	MakeFifo(p string, mode uint32) error
	MakeSocket(p string, mode uint32) error
	SetTimestamps(p string, atime, mtime, ctime time.Time) error
	SetPerms(p string, uid, gid uint32, mode uint32) error
}

const rootInum = 1

// The itype constants mirror the on-disk dent "type" field.
const (
	itypeReg = iota
	itypeDir
	itypeLnk
	itypeBlk
	itypeChr
	itypeFifo
	itypeSock
)

// Emit performs a depth-first traversal of the tree starting from the
// root inode, calling back into e for every entry, per spec §4.11. A
// hard-linked inode is materialized on its first dent and linked for
// every subsequent one; any entry whose name would escape the extraction
// root (empty, ".", "..", or containing "/") is logged as a PathError and
// dropped, and the remaining entries are still emitted (spec §4.11 "Path
// safety").
func (t *Tree) Emit(e Emitter) error {
	root, ok := t.Inodes[rootInum]
	if !ok || root.Ino == nil {
		return ErrStructural
	}

	seen := map[uint32]string{} // inum -> first emitted path, for hardlinks
	return t.emitDir(e, root, "/", seen)
}

func (t *Tree) emitDir(e Emitter, dir *Inode, p string, seen map[uint32]string) error {
	if p != "/" {
		if err := e.MakeDir(p, mode(dir.Ino)); err != nil {
			return err
		}
		if err := stampAndPerm(e, p, dir.Ino); err != nil {
			return err
		}
	}

	for _, d := range dir.Dent {
		if err := validateName(d.Name); err != nil {
			log.Printf("%s", &PathError{Path: path.Join(p, d.Name)})
			continue
		}
		childPath := path.Join(p, d.Name)

		child, ok := t.Inodes[uint32(d.ChildInum)]
		if !ok || child.Ino == nil {
			continue
		}

		if first, linked := seen[child.Inum]; linked {
			if err := e.MakeLink(childPath, first); err != nil {
				return err
			}
			continue
		}
		seen[child.Inum] = childPath

		switch d.Type {
		case itypeDir:
			if err := t.emitDir(e, child, childPath, seen); err != nil {
				return err
			}
			continue
		case itypeLnk:
			if err := e.MakeSymlink(childPath, child.SymlinkTarget()); err != nil {
				return err
			}
		case itypeBlk, itypeChr:
			major, minor := deviceNumbers(child.Ino.Data)
			devMode := mode(child.Ino) | unixFileTypeBit(d.Type)
			if err := e.MakeDevice(childPath, devMode, major, minor); err != nil {
				return err
			}
		case itypeFifo:
			if err := e.MakeFifo(childPath, mode(child.Ino)); err != nil {
				return err
			}
		case itypeSock:
			if err := e.MakeSocket(childPath, mode(child.Ino)); err != nil {
				return err
			}
		default:
			r, err := child.Reassemble(t.src)
			if err != nil {
				return err
			}
			if err := e.MakeRegFile(childPath, mode(child.Ino), r); err != nil {
				return err
			}
		}

		if err := stampAndPerm(e, childPath, child.Ino); err != nil {
			return err
		}
	}

	return nil
}

func validateName(name string) error {
	if name == "" || name == "." || name == ".." {
		return ErrPolicy
	}
	if strings.ContainsRune(name, '/') {
		return ErrPolicy
	}
	return nil
}

func mode(n *InodeNode) uint32 {
	return n.Mode & 0o7777
}

// unixFileTypeBit returns the S_IFBLK/S_IFCHR bit for a device dent type,
// so MakeDevice can tell block and character devices apart without the
// emitter having to know the dent type encoding itself.
func unixFileTypeBit(dentType uint8) uint32 {
	const (
		sIFCHR = 0o020000
		sIFBLK = 0o060000
	)
	if dentType == itypeBlk {
		return sIFBLK
	}
	return sIFCHR
}

// deviceNumbers decodes a device inode's inline data as an 8-byte
// little-endian rdev value with the major number in the high 32 bits and
// the minor number in the low 32 bits; shorter data yields 0, 0.
func deviceNumbers(data []byte) (major, minor uint32) {
	if len(data) < 8 {
		return 0, 0
	}
	var rdev uint64
	for i := 7; i >= 0; i-- {
		rdev = rdev<<8 | uint64(data[i])
	}
	return uint32(rdev >> 32), uint32(rdev)
}

func stampAndPerm(e Emitter, p string, n *InodeNode) error {
	at := time.Unix(int64(n.AtimeSec), int64(n.AtimeNsec))
	mt := time.Unix(int64(n.MtimeSec), int64(n.MtimeNsec))
	ct := time.Unix(int64(n.CtimeSec), int64(n.CtimeNsec))
	if err := e.SetTimestamps(p, at, mt, ct); err != nil {
		return err
	}
	return e.SetPerms(p, n.UID, n.GID, mode(n))
}
