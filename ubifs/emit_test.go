package ubifs_test

import (
	"io"
	"testing"
	"time"

	"github.com/flashbox/ubireader/ubifs"
)

// recordingEmitter captures every call Tree.Emit makes, for assertions
// without touching a real filesystem.
type recordingEmitter struct {
	dirs  []string
	files []string
	links map[string]string
}

func newRecordingEmitter() *recordingEmitter {
	return &recordingEmitter{links: map[string]string{}}
}

func (e *recordingEmitter) MakeDir(p string, mode uint32) error { e.dirs = append(e.dirs, p); return nil }
func (e *recordingEmitter) MakeRegFile(p string, mode uint32, data io.Reader) error {
	e.files = append(e.files, p)
	_, err := io.Copy(io.Discard, data)
	return err
}
func (e *recordingEmitter) MakeLink(p, target string) error     { e.links[p] = target; return nil }
func (e *recordingEmitter) MakeSymlink(p, target string) error  { e.links[p] = target; return nil }
func (e *recordingEmitter) MakeDevice(p string, mode uint32, major, minor uint32) error { return nil }
func (e *recordingEmitter) MakeFifo(p string, mode uint32) error                        { return nil }
func (e *recordingEmitter) MakeSocket(p string, mode uint32) error                      { return nil }
func (e *recordingEmitter) SetTimestamps(p string, atime, mtime, ctime time.Time) error { return nil }
func (e *recordingEmitter) SetPerms(p string, uid, gid, mode uint32) error              { return nil }

const dirMode = 0o040000 | 0o755
const regMode = 0o100000 | 0o644

func buildTestTree() *ubifs.Tree {
	tree := &ubifs.Tree{Inodes: map[uint32]*ubifs.Inode{
		1: {Inum: 1, Ino: &ubifs.InodeNode{Mode: dirMode}},
		2: {Inum: 2, Ino: &ubifs.InodeNode{Mode: regMode, Size: 0}},
	}}
	root := tree.Inodes[1]
	root.Dent = []*ubifs.Dirent{
		{ParentInum: 1, Name: "file.txt", ChildInum: 2, Type: 0},
		{ParentInum: 1, Name: "also-file.txt", ChildInum: 2, Type: 0}, // hardlink to inode 2
	}
	return tree
}

func TestEmitWritesFileOnceAndLinksSecondDent(t *testing.T) {
	tree := buildTestTree()
	e := newRecordingEmitter()
	if err := tree.Emit(e); err != nil {
		t.Fatalf("Emit: %s", err)
	}
	if len(e.files) != 1 {
		t.Fatalf("expected exactly one MakeRegFile call, got %d: %v", len(e.files), e.files)
	}
	if e.files[0] != "/file.txt" {
		t.Errorf("expected first dent to materialize the file, got %q", e.files[0])
	}
	if target := e.links["/also-file.txt"]; target != "/file.txt" {
		t.Errorf("expected hardlink to /file.txt, got %q", target)
	}
}

func TestEmitRejectsDotDotEntry(t *testing.T) {
	tree := &ubifs.Tree{Inodes: map[uint32]*ubifs.Inode{
		1: {Inum: 1, Ino: &ubifs.InodeNode{Mode: dirMode}},
		2: {Inum: 2, Ino: &ubifs.InodeNode{Mode: regMode}},
	}}
	tree.Inodes[1].Dent = []*ubifs.Dirent{
		{ParentInum: 1, Name: "..", ChildInum: 2},
		{ParentInum: 1, Name: "ok.txt", ChildInum: 2},
	}

	e := newRecordingEmitter()
	if err := tree.Emit(e); err != nil {
		t.Errorf("expected Emit to drop the \"..\" entry and continue, got %s", err)
	}
	if len(e.files) != 1 || e.files[0] != "/ok.txt" || len(e.links) != 0 {
		t.Errorf("expected only /ok.txt to be emitted, got files=%v links=%v", e.files, e.links)
	}
}
