package ubifs

import "log"

type pending struct {
	lnum uint32
	offs uint32
}

// Walk performs the recursive descent of spec §4.9, starting at the
// master's recorded root. It accumulates inodes, dents, and lazy data
// references into a Tree. Depth is bounded by the index tree's height, so
// an explicit work-stack (rather than recursion) is used throughout, the
// same preference for explicit iteration over recursion the teacher shows
// in dirReader.nextfull for its own nested record format.
func (fs *FS) Walk() (*Tree, error) {
	tree := &Tree{Inodes: map[uint32]*Inode{}, src: fs.vol.Source().AsReaderAt()}

	stack := []pending{{fs.Master.RootLnum, fs.Master.RootOffs}}

	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		ch, raw, err := readNode(&lebWindow{fs.stream, cur.lnum}, int64(cur.offs), Magic)
		if err != nil {
			if !fs.recordBad(tree, cur.lnum, err) {
				return tree, err
			}
			continue
		}
		if !ch.CRCOk {
			nerr := &NodeError{Lnum: cur.lnum, Offs: cur.offs, Err: ErrIntegrity}
			if !fs.recordBad(tree, cur.lnum, nerr) {
				return tree, nerr
			}
			continue
		}

		body := raw[chSize:]

		switch ch.NodeType {
		case NodeIdx:
			var idx IndexNode
			if err := idx.UnmarshalBinary(body, ch.Len); err != nil {
				if !fs.recordBad(tree, cur.lnum, err) {
					return tree, err
				}
				continue
			}
			for _, br := range idx.Branches {
				stack = append(stack, pending{br.Lnum, br.Offs})
			}

		case NodeIno:
			var n InodeNode
			if err := n.UnmarshalBinary(body); err != nil {
				if !fs.recordBad(tree, cur.lnum, err) {
					return tree, err
				}
				continue
			}
			// last one wins: the walker visits the freshest tree, spec §3.
			tree.inode(n.Key.Inum()).Ino = &n

		case NodeData:
			var n DataNode
			if err := n.UnmarshalBinary(body); err != nil {
				if !fs.recordBad(tree, cur.lnum, err) {
					return tree, err
				}
				continue
			}
			payloadOffs := cur.offs + chSize + dataFixedSz
			abs, ok := fs.vol.AbsoluteOffset(cur.lnum, payloadOffs)
			if !ok {
				continue
			}
			ref := DataRef{
				Key:       n.Key,
				AbsOffset: abs,
				ComprLen:  int(ch.Len) - chSize - dataFixedSz,
				ComprType: n.ComprType,
				Size:      n.Size,
			}
			ino := tree.inode(n.Key.Inum())
			ino.Data = append(ino.Data, ref)

		case NodeDent, NodeXent:
			var n DentNode
			if err := n.UnmarshalBinary(body); err != nil {
				if !fs.recordBad(tree, cur.lnum, err) {
					return tree, err
				}
				continue
			}
			parent := tree.inode(n.Key.Inum())
			d := &Dirent{ParentInum: n.Key.Inum(), Name: n.Name, ChildInum: n.Inum, Type: n.Type}
			if ch.NodeType == NodeXent {
				parent.Xent = append(parent.Xent, d)
			} else {
				parent.Dent = append(parent.Dent, d)
			}

		case NodePad:
			// padding never appears as a branch target in a well-formed
			// index; ignore it if it does.

		default:
			// unknown/uninterpreted node type: ignore (spec §4.13).
		}
	}

	return tree, nil
}

// recordBad applies spec §4.13's warn/strict policy to a mid-walk failure:
// in warn mode it records the LEB and continues; in strict mode it
// signals the caller to abort.
func (fs *FS) recordBad(tree *Tree, lnum uint32, err error) bool {
	if !fs.cfg.warnOnly {
		return false
	}
	log.Printf("ubifs: bad node in lnum=%d: %s", lnum, err)
	for _, l := range tree.BadLebs {
		if l == lnum {
			return true
		}
	}
	tree.BadLebs = append(tree.BadLebs, lnum)
	return true
}
