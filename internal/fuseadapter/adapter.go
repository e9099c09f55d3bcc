// Package fuseadapter implements the jacobsa/fuse kernel-facing
// fuseutil.FileSystem interface by translating each callback into a
// synchronous call on the VFS engine (internal/vfs).
package fuseadapter

import (
	"context"
	"os"
	"syscall"

	"github.com/jacobsa/fuse"
	"github.com/jacobsa/fuse/fuseops"
	"github.com/jacobsa/fuse/fuseutil"

	"github.com/reekid420/AegisFS/internal/aegisfserr"
	"github.com/reekid420/AegisFS/internal/vfs"
)

// Adapter implements fuseutil.FileSystem over a vfs.Engine. Operations
// this filesystem has no use for (hard links, device nodes, extended
// attributes, fallocate) fall through to
// fuseutil.NotImplementedFileSystem's ENOSYS defaults.
type Adapter struct {
	fuseutil.NotImplementedFileSystem

	engine *vfs.Engine
	uid    uint32
	gid    uint32
}

// New builds an Adapter over engine. uid/gid become the owner of every
// inode created through the adapter; the caller identity carried in the
// kernel request is not used.
func New(engine *vfs.Engine, uid, gid uint32) *Adapter {
	return &Adapter{engine: engine, uid: uid, gid: gid}
}

// NewServer adapts a onto the fuse.Server interface expected by fuse.Mount.
func NewServer(a *Adapter) fuse.Server {
	return fuseutil.NewFileSystemServer(a)
}

// errnoFor maps the aegisfserr taxonomy onto the errno values the kernel
// expects back from a fuseutil.FileSystem method.
func errnoFor(err error) error {
	if err == nil {
		return nil
	}
	switch aegisfserr.KindOf(err) {
	case aegisfserr.KindNotFound:
		return fuse.ENOENT
	case aegisfserr.KindExist:
		return fuse.EEXIST
	case aegisfserr.KindNotADirectory:
		return fuse.ENOTDIR
	case aegisfserr.KindIsADirectory:
		return syscall.EISDIR
	case aegisfserr.KindNotEmpty:
		return fuse.ENOTEMPTY
	case aegisfserr.KindReadOnlyFilesystem:
		return syscall.EROFS
	case aegisfserr.KindNoFreeInodes, aegisfserr.KindNoFreeBlocks:
		return syscall.ENOSPC
	case aegisfserr.KindParameter:
		return syscall.EINVAL
	default:
		return fuse.EIO
	}
}

func (a *Adapter) Init(ctx context.Context, op *fuseops.InitOp) error {
	return nil
}

func (a *Adapter) LookUpInode(ctx context.Context, op *fuseops.LookUpInodeOp) error {
	id, attrs, err := a.engine.Lookup(uint64(op.Parent), op.Name)
	if err != nil {
		return errnoFor(err)
	}
	op.Entry.Child = fuseops.InodeID(id)
	op.Entry.Attributes = attrs
	return nil
}

func (a *Adapter) GetInodeAttributes(ctx context.Context, op *fuseops.GetInodeAttributesOp) error {
	attrs, err := a.engine.GetAttr(uint64(op.Inode))
	if err != nil {
		return errnoFor(err)
	}
	op.Attributes = attrs
	return nil
}

func (a *Adapter) SetInodeAttributes(ctx context.Context, op *fuseops.SetInodeAttributesOp) error {
	var mode *os.FileMode
	if op.Mode != nil {
		m := *op.Mode
		mode = &m
	}
	attrs, err := a.engine.SetAttr(uint64(op.Inode), vfs.SetAttrRequest{
		Size:  op.Size,
		Mode:  mode,
		Atime: op.Atime,
		Mtime: op.Mtime,
	})
	if err != nil {
		return errnoFor(err)
	}
	op.Attributes = attrs
	return nil
}

func (a *Adapter) ForgetInode(ctx context.Context, op *fuseops.ForgetInodeOp) error {
	a.engine.Forget(uint64(op.Inode), uint64(op.N))
	return nil
}

func (a *Adapter) MkDir(ctx context.Context, op *fuseops.MkDirOp) error {
	id, attrs, err := a.engine.Mkdir(uint64(op.Parent), op.Name, uint16(op.Mode.Perm()), a.uid, a.gid)
	if err != nil {
		return errnoFor(err)
	}
	op.Entry.Child = fuseops.InodeID(id)
	op.Entry.Attributes = attrs
	return nil
}

func (a *Adapter) CreateFile(ctx context.Context, op *fuseops.CreateFileOp) error {
	id, attrs, err := a.engine.Create(uint64(op.Parent), op.Name, uint16(op.Mode.Perm()), a.uid, a.gid)
	if err != nil {
		return errnoFor(err)
	}
	op.Entry.Child = fuseops.InodeID(id)
	op.Entry.Attributes = attrs
	op.Handle = fuseops.HandleID(id)
	return nil
}

func (a *Adapter) CreateSymlink(ctx context.Context, op *fuseops.CreateSymlinkOp) error {
	id, attrs, err := a.engine.CreateSymlink(uint64(op.Parent), op.Name, op.Target, a.uid, a.gid)
	if err != nil {
		return errnoFor(err)
	}
	op.Entry.Child = fuseops.InodeID(id)
	op.Entry.Attributes = attrs
	return nil
}

func (a *Adapter) ReadSymlink(ctx context.Context, op *fuseops.ReadSymlinkOp) error {
	target, err := a.engine.ReadSymlink(uint64(op.Inode))
	if err != nil {
		return errnoFor(err)
	}
	op.Target = target
	return nil
}

func (a *Adapter) RmDir(ctx context.Context, op *fuseops.RmDirOp) error {
	return errnoFor(a.engine.Rmdir(uint64(op.Parent), op.Name))
}

func (a *Adapter) Unlink(ctx context.Context, op *fuseops.UnlinkOp) error {
	return errnoFor(a.engine.Unlink(uint64(op.Parent), op.Name))
}

func (a *Adapter) Rename(ctx context.Context, op *fuseops.RenameOp) error {
	return errnoFor(a.engine.Rename(uint64(op.OldParent), op.OldName, uint64(op.NewParent), op.NewName))
}

func (a *Adapter) OpenDir(ctx context.Context, op *fuseops.OpenDirOp) error {
	op.Handle = fuseops.HandleID(op.Inode)
	return nil
}

func (a *Adapter) ReadDir(ctx context.Context, op *fuseops.ReadDirOp) error {
	entries, err := a.engine.ReadDir(uint64(op.Inode))
	if err != nil {
		return errnoFor(err)
	}
	if int(op.Offset) > len(entries) {
		return syscall.EINVAL
	}

	var data []byte
	for i, e := range entries[int(op.Offset):] {
		dirent := fuseutil.Dirent{
			Offset: op.Offset + fuseops.DirOffset(i) + 1,
			Inode:  fuseops.InodeID(e.InodeID),
			Name:   e.Name,
			Type:   e.Type,
		}
		grown := fuseutil.AppendDirent(data, dirent)
		if len(grown) > op.Size {
			break
		}
		data = grown
	}
	op.Data = data
	return nil
}

func (a *Adapter) ReleaseDirHandle(ctx context.Context, op *fuseops.ReleaseDirHandleOp) error {
	return nil
}

func (a *Adapter) OpenFile(ctx context.Context, op *fuseops.OpenFileOp) error {
	op.Handle = fuseops.HandleID(op.Inode)
	return nil
}

func (a *Adapter) ReadFile(ctx context.Context, op *fuseops.ReadFileOp) error {
	data, err := a.engine.ReadFile(uint64(op.Inode), uint64(op.Offset), uint64(op.Size))
	if err != nil {
		return errnoFor(err)
	}
	op.Data = data
	return nil
}

func (a *Adapter) WriteFile(ctx context.Context, op *fuseops.WriteFileOp) error {
	return errnoFor(a.engine.WriteFile(uint64(op.Inode), uint64(op.Offset), op.Data))
}

func (a *Adapter) SyncFile(ctx context.Context, op *fuseops.SyncFileOp) error {
	return errnoFor(a.engine.Fsync(uint64(op.Inode)))
}

func (a *Adapter) FlushFile(ctx context.Context, op *fuseops.FlushFileOp) error {
	return errnoFor(a.engine.Fsync(uint64(op.Inode)))
}

func (a *Adapter) ReleaseFileHandle(ctx context.Context, op *fuseops.ReleaseFileHandleOp) error {
	return nil
}

func (a *Adapter) StatFS(ctx context.Context, op *fuseops.StatFSOp) error {
	sb := a.engine.StatFS()
	op.Blocks = sb.TotalBlocks
	op.BlocksFree = sb.FreeBlocks
	op.BlocksAvailable = sb.FreeBlocks
	op.Inodes = sb.TotalInodes
	op.InodesFree = sb.FreeInodes
	op.IoSize = sb.BlockSize
	op.BlockSize = sb.BlockSize
	return nil
}

func (a *Adapter) Destroy() {
	a.engine.Close()
}
