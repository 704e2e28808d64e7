package ubifs

import "io"

// DataRef records where a data node's compressed payload lives on the
// source, rather than holding the bytes themselves (spec §9 "Avoiding
// full-image residency").
type DataRef struct {
	Key       Key
	AbsOffset int64
	ComprLen  int
	ComprType uint16
	Size      uint32 // uncompressed length of this block
}

// Dirent is an accumulated directory or extended-attribute entry,
// spec §3 "Directory entry".
type Dirent struct {
	ParentInum uint32
	Name       string
	ChildInum  uint64
	Type       uint8
}

// Inode accumulates everything the walker found for one inode number:
// at most one inode node (spec §3 invariant), its data blocks, and the
// dents/xents that name it as parent.
type Inode struct {
	Inum uint32
	Ino  *InodeNode
	Data []DataRef
	Dent []*Dirent
	Xent []*Dirent
}

// Tree is the frozen result of a walk: the inode map plus any LEBs that
// failed mid-walk under warn mode (spec §4.9 step 7, §4.12 "Walked").
// src is kept for Emit to lazily re-read data node payloads through
// Inode.Reassemble without threading a reader through every caller.
type Tree struct {
	Inodes  map[uint32]*Inode
	BadLebs []uint32

	src io.ReaderAt
}

func (t *Tree) inode(inum uint32) *Inode {
	n, ok := t.Inodes[inum]
	if !ok {
		n = &Inode{Inum: inum}
		t.Inodes[inum] = n
	}
	return n
}
