// Command ubireader inspects and extracts UBI/UBIFS flash images.
package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/flashbox/ubireader/ubi"
	"github.com/flashbox/ubireader/ubifs"
)

const usage = `ubireader - UBI/UBIFS image inspection tool

Usage:
  ubireader info <image> [-blocksize N]                List images and volumes
  ubireader ls <image> -volume NAME [<path>]            List files in a volume
  ubireader cat <image> -volume NAME <path>              Print a file's contents
  ubireader extract <image> -volume NAME <dir>           Extract a volume to dir
  ubireader help                                         Show this help message

Flags:
  -blocksize N   Force the PEB size instead of auto-detecting it.
  -volume NAME   Select the volume to operate on (required by ls/cat/extract).

Examples:
  ubireader info firmware.ubi
  ubireader ls firmware.ubi -volume rootfs /etc
  ubireader cat firmware.ubi -volume rootfs /etc/passwd
  ubireader extract firmware.ubi -volume rootfs ./out
`

func main() {
	if len(os.Args) < 2 {
		fmt.Println(usage)
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "info":
		err = runInfo(args)
	case "ls":
		err = runLs(args)
	case "cat":
		err = runCat(args)
	case "extract":
		err = runExtract(args)
	case "help":
		fmt.Println(usage)
		return
	default:
		fmt.Printf("Error: unknown command %q\n", cmd)
		fmt.Println(usage)
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

// flags holds the subset of flag parsing this CLI needs; avoids pulling
// in the flag package's global FlagSet ordering requirements since
// ubireader's positional args and flags interleave freely.
type flags struct {
	blockSize int
	volume    string
	pos       []string
}

func parseFlags(args []string) (*flags, error) {
	f := &flags{}
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "-blocksize":
			i++
			if i >= len(args) {
				return nil, fmt.Errorf("-blocksize requires a value")
			}
			n, err := strconv.Atoi(args[i])
			if err != nil {
				return nil, fmt.Errorf("-blocksize: %w", err)
			}
			f.blockSize = n
		case "-volume":
			i++
			if i >= len(args) {
				return nil, fmt.Errorf("-volume requires a value")
			}
			f.volume = args[i]
		default:
			f.pos = append(f.pos, args[i])
		}
	}
	return f, nil
}

func openImages(path string, blockSize int) (*ubi.Source, []*ubi.Image, func() error, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, nil, err
	}

	if blockSize == 0 {
		blockSize, err = ubi.DetectBlockSize(f, info.Size())
		if err != nil {
			f.Close()
			return nil, nil, nil, fmt.Errorf("detect block size: %w", err)
		}
	}

	src, err := ubi.NewSource(f, 0, info.Size(), blockSize, info.Size(), ubi.WarnOnly())
	if err != nil {
		f.Close()
		return nil, nil, nil, err
	}

	pebs, err := ubi.Scan(src)
	if err != nil {
		f.Close()
		return nil, nil, nil, err
	}

	images, err := ubi.AssembleVolumes(src, pebs, ubi.WarnOnly())
	if err != nil {
		f.Close()
		return nil, nil, nil, err
	}

	return src, images, f.Close, nil
}

func findVolume(images []*ubi.Image, name string) (*ubi.Volume, error) {
	for _, img := range images {
		for _, v := range img.Volumes {
			if v.Name == name {
				return v, nil
			}
		}
	}
	return nil, fmt.Errorf("no such volume %q", name)
}

func runInfo(args []string) error {
	f, err := parseFlags(args)
	if err != nil {
		return err
	}
	if len(f.pos) < 1 {
		return fmt.Errorf("missing image path")
	}

	_, images, closeFn, err := openImages(f.pos[0], f.blockSize)
	if err != nil {
		return err
	}
	defer closeFn()

	for _, img := range images {
		fmt.Printf("image_seq=0x%08x\n", img.Seq)
		for _, v := range img.Volumes {
			fmt.Printf("  volume %-16s id=%-4d type=%d lebs=%-6d alignment=%d\n",
				v.Name, v.VolID, v.VolType, len(v.LEBs), v.Alignment)
		}
	}
	return nil
}

func openVolumeFS(args []string) (*ubifs.FS, func() error, []string, error) {
	f, err := parseFlags(args)
	if err != nil {
		return nil, nil, nil, err
	}
	if len(f.pos) < 1 {
		return nil, nil, nil, fmt.Errorf("missing image path")
	}
	if f.volume == "" {
		return nil, nil, nil, fmt.Errorf("-volume is required")
	}

	_, images, closeFn, err := openImages(f.pos[0], f.blockSize)
	if err != nil {
		return nil, nil, nil, err
	}

	vol, err := findVolume(images, f.volume)
	if err != nil {
		closeFn()
		return nil, nil, nil, err
	}

	fs, err := ubifs.Open(vol, ubifs.WarnOnly())
	if err != nil {
		closeFn()
		return nil, nil, nil, err
	}

	return fs, closeFn, f.pos[1:], nil
}

func runLs(args []string) error {
	fs, closeFn, pos, err := openVolumeFS(args)
	if err != nil {
		return err
	}
	defer closeFn()

	tree, err := fs.Walk()
	if err != nil {
		return err
	}

	dirPath := "/"
	if len(pos) > 0 {
		dirPath = pos[0]
	}

	ino, err := resolvePath(tree, dirPath)
	if err != nil {
		return err
	}
	for _, d := range ino.Dent {
		child := tree.Inodes[uint32(d.ChildInum)]
		printEntry(dirPath, d.Name, child)
	}
	return nil
}

func runCat(args []string) error {
	fs, closeFn, pos, err := openVolumeFS(args)
	if err != nil {
		return err
	}
	defer closeFn()
	if len(pos) < 1 {
		return fmt.Errorf("missing file path")
	}

	tree, err := fs.Walk()
	if err != nil {
		return err
	}

	ino, err := resolvePath(tree, pos[0])
	if err != nil {
		return err
	}
	r, err := ino.Reassemble(fs.Volume().Source().AsReaderAt())
	if err != nil {
		return err
	}
	buf := make([]byte, 32*1024)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			os.Stdout.Write(buf[:n])
		}
		if err != nil {
			break
		}
	}
	return nil
}

func runExtract(args []string) error {
	fs, closeFn, pos, err := openVolumeFS(args)
	if err != nil {
		return err
	}
	defer closeFn()
	if len(pos) < 1 {
		return fmt.Errorf("missing destination directory")
	}

	tree, err := fs.Walk()
	if err != nil {
		return err
	}

	e := newDirEmitter(pos[0])
	if err := tree.Emit(e); err != nil {
		return fmt.Errorf("extract: %w", err)
	}
	fmt.Printf("extracted to %s (%d bad LEBs)\n", pos[0], len(tree.BadLebs))
	return nil
}

func resolvePath(tree *ubifs.Tree, p string) (*ubifs.Inode, error) {
	cur := tree.Inodes[1]
	if cur == nil {
		return nil, fmt.Errorf("empty tree")
	}
	p = strings.Trim(p, "/")
	if p == "" || p == "." {
		return cur, nil
	}
	for _, part := range strings.Split(p, "/") {
		found := false
		for _, d := range cur.Dent {
			if d.Name == part {
				cur = tree.Inodes[uint32(d.ChildInum)]
				found = true
				break
			}
		}
		if !found || cur == nil {
			return nil, fmt.Errorf("no such path %q", p)
		}
	}
	return cur, nil
}

func printEntry(dir, name string, ino *ubifs.Inode) {
	typeChar := "-"
	mode := uint32(0)
	size := uint64(0)
	mtime := time.Time{}
	if ino != nil && ino.Ino != nil {
		mode = ino.Ino.Mode
		size = ino.Ino.Size
		mtime = time.Unix(int64(ino.Ino.MtimeSec), 0)
		switch mode & 0o170000 {
		case 0o040000:
			typeChar = "d"
		case 0o120000:
			typeChar = "l"
		}
	}
	fmt.Printf("%s%04o %8d %s %s\n", typeChar, mode&0o7777, size, mtime.Format("Jan 02 15:04"), name)
}
