//go:build fuse

package ubifs

import (
	"context"
	"io"
	"log"
	"os"
	"time"

	"github.com/hanwen/go-fuse/v2/fuse"
)

// FuseNode adapts one Tree inode to go-fuse's raw node API, the same
// shape the teacher exposes on its own Inode (inode_fuse.go), re-pointed
// at a walked UBIFS Tree instead of a squashfs superblock.
type FuseNode struct {
	tree *Tree
	Inum uint32
}

func (t *Tree) Node(inum uint32) *FuseNode {
	return &FuseNode{tree: t, Inum: inum}
}

func (n *FuseNode) inode() *Inode {
	return n.tree.Inodes[n.Inum]
}

func (n *FuseNode) Lookup(ctx context.Context, name string) (uint64, error) {
	ino := n.inode()
	if ino == nil {
		return 0, os.ErrNotExist
	}
	for _, d := range ino.Dent {
		if d.Name == name {
			return d.ChildInum, nil
		}
	}
	return 0, os.ErrNotExist
}

func (n *FuseNode) Open(flags uint32) (uint32, error) {
	// read-only image: always safe to cache the open across handles.
	return fuse.FOPEN_KEEP_CACHE, nil
}

func (n *FuseNode) OpenDir() (uint32, error) {
	ino := n.inode()
	if ino == nil || ino.Ino == nil {
		return 0, os.ErrInvalid
	}
	if ino.Ino.Mode&0o170000 != 0o040000 {
		return 0, os.ErrInvalid
	}
	return fuse.FOPEN_KEEP_CACHE, nil
}

func (n *FuseNode) fillEntry(entry *fuse.EntryOut, child *Inode) {
	entry.NodeId = uint64(child.Inum)
	entry.Attr.Ino = entry.NodeId
	if child.Ino != nil {
		entry.Attr.Mode = child.Ino.Mode
		entry.Attr.Size = child.Ino.Size
		entry.Attr.Uid = child.Ino.UID
		entry.Attr.Gid = child.Ino.GID
	}
	entry.SetEntryTimeout(time.Second)
	entry.SetAttrTimeout(time.Second)
}

// ReadDir mirrors the teacher's synthetic "." / ".." entries followed by
// the real dents, with the same off-by-two positional bookkeeping
// (inode_fuse.go).
func (n *FuseNode) ReadDir(input *fuse.ReadIn, out *fuse.DirEntryList, plus bool) error {
	ino := n.inode()
	if ino == nil {
		return os.ErrInvalid
	}

	pos := input.Offset + 1
	cur := uint64(0)
	idx := 0

	for {
		cur++
		var name string
		var childInum uint32
		var childMode uint32 = ino.Ino.Mode

		switch {
		case cur == 1:
			name = "."
			childInum = n.Inum
		case cur == 2:
			name = ".."
			childInum = n.Inum // TODO: track real parent for ".." resolution
		default:
			if idx >= len(ino.Dent) {
				return nil
			}
			d := ino.Dent[idx]
			idx++
			name = d.Name
			childInum = uint32(d.ChildInum)
			if child := n.tree.Inodes[childInum]; child != nil && child.Ino != nil {
				childMode = child.Ino.Mode
			}
		}

		if cur < pos {
			continue
		}

		if !plus {
			if !out.Add(0, name, uint64(childInum), childMode) {
				return nil
			}
			continue
		}
		entry := out.AddDirLookupEntry(fuse.DirEntry{Mode: childMode, Name: name, Ino: uint64(childInum)})
		if entry == nil {
			return nil
		}
		if child := n.tree.Inodes[childInum]; child != nil {
			n.fillEntry(entry, child)
		}
	}
}

// Read serves file content through Reassemble, logging (not failing
// open) on reassembly errors the way inode_fuse.go treats read errors as
// per-request rather than fatal to the mount.
func (n *FuseNode) Read(src io.ReaderAt) (io.Reader, error) {
	ino := n.inode()
	if ino == nil {
		return nil, os.ErrNotExist
	}
	r, err := ino.Reassemble(src)
	if err != nil {
		log.Printf("ubifs: fuse read inum=%d: %s", n.Inum, err)
		return nil, err
	}
	return r, nil
}
