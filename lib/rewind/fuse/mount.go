// Copyright 2026 The BTSync Rewind Authors
// SPDX-License-Identifier: Apache-2.0

package fuse

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"strconv"
	"syscall"
	"time"

	gofuse "github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
	"github.com/psranga/btsync-rewind/lib/rewind"
)

// Options configures the FUSE mount.
type Options struct {
	// Mountpoint is the directory where the filesystem is mounted.
	Mountpoint string

	// View is the snapshot adapter every operation resolves
	// through. Required.
	View *rewind.View

	// AllowOther permits other users (including root) to access the
	// mount. Requires user_allow_other in /etc/fuse.conf.
	AllowOther bool

	// Logger receives diagnostic messages. If nil, a no-op logger
	// is used.
	Logger *slog.Logger
}

// Mount mounts the rewindable filesystem at the configured
// mountpoint. The caller must call Unmount on the returned Server
// when done. The mountpoint directory is created if it does not
// exist.
func Mount(options Options) (*fuse.Server, error) {
	if options.Mountpoint == "" {
		return nil, fmt.Errorf("mountpoint is required")
	}
	if options.View == nil {
		return nil, fmt.Errorf("view is required")
	}
	if options.Logger == nil {
		options.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelError,
		}))
	}

	if err := os.MkdirAll(options.Mountpoint, 0o755); err != nil {
		return nil, fmt.Errorf("creating mountpoint %s: %w", options.Mountpoint, err)
	}

	root := &rootNode{options: &options}

	entryTimeout := 1 * time.Second
	attrTimeout := 1 * time.Second
	negativeTimeout := 100 * time.Millisecond

	server, err := gofuse.Mount(options.Mountpoint, root, &gofuse.Options{
		EntryTimeout:    &entryTimeout,
		AttrTimeout:     &attrTimeout,
		NegativeTimeout: &negativeTimeout,
		MountOptions: fuse.MountOptions{
			FsName:     "btsync-rewind",
			Name:       "rewind",
			AllowOther: options.AllowOther,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("mounting FUSE filesystem at %s: %w", options.Mountpoint, err)
	}

	options.Logger.Info("rewindable filesystem mounted", "mountpoint", options.Mountpoint)
	return server, nil
}

// errnoFor maps the snapshot adapter's error taxonomy onto the
// platform's errno values. Unknown errors become EIO.
func errnoFor(err error) syscall.Errno {
	switch {
	case errors.Is(err, rewind.ErrNotFound):
		return syscall.ENOENT
	case errors.Is(err, rewind.ErrNotDirectory):
		return syscall.ENOTDIR
	case errors.Is(err, rewind.ErrIsDirectory):
		return syscall.EISDIR
	case errors.Is(err, rewind.ErrInvalidTimestamp),
		errors.Is(err, rewind.ErrMalformedPath):
		// The kernel asked about a name that can never exist.
		return syscall.ENOENT
	case errors.Is(err, rewind.ErrIndexUnavailable):
		return syscall.EAGAIN
	default:
		return syscall.EIO
	}
}

// externalPath builds the snapshot adapter path for one node.
func externalPath(at int64, relative string) string {
	if relative == "" {
		return "/" + strconv.FormatInt(at, 10)
	}
	return "/" + strconv.FormatInt(at, 10) + "/" + relative
}

// fillAttr copies adapter attributes into a kernel attribute
// structure.
func fillAttr(attributes rewind.Attributes, out *fuse.Attr) {
	switch attributes.Kind {
	case rewind.KindDirectory:
		out.Mode = syscall.S_IFDIR | attributes.Mode
	case rewind.KindSymlink:
		out.Mode = syscall.S_IFLNK | attributes.Mode
	default:
		out.Mode = syscall.S_IFREG | attributes.Mode
	}
	out.Size = uint64(attributes.Size)
	if attributes.ModTime > 0 {
		out.Mtime = uint64(attributes.ModTime)
	}
	out.Blocks = (out.Size + 511) / 512
}

func entryMode(kind rewind.Kind) uint32 {
	switch kind {
	case rewind.KindDirectory:
		return syscall.S_IFDIR
	case rewind.KindSymlink:
		return syscall.S_IFLNK
	default:
		return syscall.S_IFREG
	}
}

// rootNode is the synthetic filesystem root. Its children are
// snapshot instants: any non-negative decimal epoch-seconds name
// resolves to the tree as it was at that instant, so the namespace
// is not enumerable — Readdir lists only the "now" convenience
// symlink.
type rootNode struct {
	gofuse.Inode
	options *Options
}

var _ gofuse.InodeEmbedder = (*rootNode)(nil)
var _ gofuse.NodeLookuper = (*rootNode)(nil)
var _ gofuse.NodeReaddirer = (*rootNode)(nil)
var _ gofuse.NodeGetattrer = (*rootNode)(nil)

func (r *rootNode) Getattr(ctx context.Context, f gofuse.FileHandle, out *fuse.AttrOut) syscall.Errno {
	out.Mode = syscall.S_IFDIR | 0o555
	return 0
}

func (r *rootNode) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*gofuse.Inode, syscall.Errno) {
	if name == rewind.NowEntry {
		child := r.NewInode(ctx, &nowNode{options: r.options}, gofuse.StableAttr{Mode: syscall.S_IFLNK})
		out.Mode = syscall.S_IFLNK | 0o555
		return child, 0
	}

	at, err := rewind.ParseTimestamp(name)
	if err != nil {
		return nil, syscall.ENOENT
	}

	attributes, err := r.options.View.GetAttributes(externalPath(at, ""))
	if err != nil {
		return nil, errnoFor(err)
	}

	node := &dirNode{options: r.options, at: at}
	child := r.NewInode(ctx, node, gofuse.StableAttr{Mode: syscall.S_IFDIR})
	fillAttr(attributes, &out.Attr)
	return child, 0
}

func (r *rootNode) Readdir(ctx context.Context) (gofuse.DirStream, syscall.Errno) {
	entries, err := r.options.View.ListDirectory("/")
	if err != nil {
		return nil, errnoFor(err)
	}
	return newSliceDirStream(entries), 0
}

// nowNode is the "now" convenience symlink. Its target is the
// current epoch-seconds snapshot directory, evaluated at readlink
// time, so "ls mountpoint/now" always shows the present state.
type nowNode struct {
	gofuse.Inode
	options *Options
}

var _ gofuse.InodeEmbedder = (*nowNode)(nil)
var _ gofuse.NodeReadlinker = (*nowNode)(nil)

func (n *nowNode) Readlink(ctx context.Context) ([]byte, syscall.Errno) {
	target, err := n.options.View.ReadLink("/" + rewind.NowEntry)
	if err != nil {
		return nil, errnoFor(err)
	}
	return []byte(target), 0
}

// dirNode is a directory inside one snapshot. It carries only its
// instant and relative path; every operation re-resolves against the
// currently published index, so a refresh is picked up on the next
// kernel call without remounting.
type dirNode struct {
	gofuse.Inode
	options *Options
	at      int64
	rel     string
}

var _ gofuse.InodeEmbedder = (*dirNode)(nil)
var _ gofuse.NodeLookuper = (*dirNode)(nil)
var _ gofuse.NodeReaddirer = (*dirNode)(nil)
var _ gofuse.NodeGetattrer = (*dirNode)(nil)

func (d *dirNode) Getattr(ctx context.Context, f gofuse.FileHandle, out *fuse.AttrOut) syscall.Errno {
	attributes, err := d.options.View.GetAttributes(externalPath(d.at, d.rel))
	if err != nil {
		return errnoFor(err)
	}
	fillAttr(attributes, &out.Attr)
	return 0
}

func (d *dirNode) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*gofuse.Inode, syscall.Errno) {
	relative := path.Join(d.rel, name)
	attributes, err := d.options.View.GetAttributes(externalPath(d.at, relative))
	if err != nil {
		return nil, errnoFor(err)
	}

	var node gofuse.InodeEmbedder
	switch attributes.Kind {
	case rewind.KindDirectory:
		node = &dirNode{options: d.options, at: d.at, rel: relative}
	case rewind.KindSymlink:
		node = &symlinkNode{options: d.options, at: d.at, rel: relative}
	default:
		node = &fileNode{options: d.options, at: d.at, rel: relative}
	}

	child := d.NewInode(ctx, node, gofuse.StableAttr{Mode: entryMode(attributes.Kind)})
	fillAttr(attributes, &out.Attr)
	return child, 0
}

func (d *dirNode) Readdir(ctx context.Context) (gofuse.DirStream, syscall.Errno) {
	entries, err := d.options.View.ListDirectory(externalPath(d.at, d.rel))
	if err != nil {
		return nil, errnoFor(err)
	}
	return newSliceDirStream(entries), 0
}

// fileNode is one file version inside a snapshot.
type fileNode struct {
	gofuse.Inode
	options *Options
	at      int64
	rel     string
}

var _ gofuse.InodeEmbedder = (*fileNode)(nil)
var _ gofuse.NodeGetattrer = (*fileNode)(nil)
var _ gofuse.NodeOpener = (*fileNode)(nil)
var _ gofuse.NodeReader = (*fileNode)(nil)
var _ gofuse.NodeReleaser = (*fileNode)(nil)

func (f *fileNode) Getattr(ctx context.Context, handle gofuse.FileHandle, out *fuse.AttrOut) syscall.Errno {
	attributes, err := f.options.View.GetAttributes(externalPath(f.at, f.rel))
	if err != nil {
		return errnoFor(err)
	}
	fillAttr(attributes, &out.Attr)
	return 0
}

func (f *fileNode) Open(ctx context.Context, flags uint32) (gofuse.FileHandle, uint32, syscall.Errno) {
	if flags&(syscall.O_WRONLY|syscall.O_RDWR|syscall.O_APPEND|syscall.O_CREAT|syscall.O_TRUNC) != 0 {
		return nil, 0, syscall.EROFS
	}

	handle, err := f.options.View.Open(externalPath(f.at, f.rel))
	if err != nil {
		f.options.Logger.Error("open failed", "path", f.rel, "at", f.at, "error", err)
		return nil, 0, errnoFor(err)
	}

	// Archived content is immutable, so the kernel page cache stays
	// valid forever. Live content moves; don't cache it across
	// opens.
	var fuseFlags uint32
	if !handle.Record().Live {
		fuseFlags = fuse.FOPEN_KEEP_CACHE
	}
	return &fileHandle{handle: handle}, fuseFlags, 0
}

func (f *fileNode) Read(ctx context.Context, handle gofuse.FileHandle, dest []byte, offset int64) (fuse.ReadResult, syscall.Errno) {
	open, ok := handle.(*fileHandle)
	if !ok {
		return nil, syscall.EBADF
	}
	n, err := open.handle.ReadAt(dest, offset)
	if err != nil && !errors.Is(err, io.EOF) {
		f.options.Logger.Error("read failed", "path", f.rel, "at", f.at, "offset", offset, "error", err)
		return nil, syscall.EIO
	}
	return fuse.ReadResultData(dest[:n]), 0
}

func (f *fileNode) Release(ctx context.Context, handle gofuse.FileHandle) syscall.Errno {
	if open, ok := handle.(*fileHandle); ok {
		if err := open.handle.Close(); err != nil {
			return syscall.EIO
		}
	}
	return 0
}

// fileHandle wraps an adapter read handle for the kernel.
type fileHandle struct {
	handle *rewind.Handle
}

// symlinkNode is one symlink version inside a snapshot.
type symlinkNode struct {
	gofuse.Inode
	options *Options
	at      int64
	rel     string
}

var _ gofuse.InodeEmbedder = (*symlinkNode)(nil)
var _ gofuse.NodeReadlinker = (*symlinkNode)(nil)

func (s *symlinkNode) Readlink(ctx context.Context) ([]byte, syscall.Errno) {
	target, err := s.options.View.ReadLink(externalPath(s.at, s.rel))
	if err != nil {
		return nil, errnoFor(err)
	}
	return []byte(target), 0
}

// sliceDirStream implements fs.DirStream from a slice of adapter
// entries.
type sliceDirStream struct {
	entries []rewind.DirEntry
	index   int
}

func newSliceDirStream(entries []rewind.DirEntry) *sliceDirStream {
	return &sliceDirStream{entries: entries}
}

func (s *sliceDirStream) HasNext() bool {
	return s.index < len(s.entries)
}

func (s *sliceDirStream) Next() (fuse.DirEntry, syscall.Errno) {
	if s.index >= len(s.entries) {
		return fuse.DirEntry{}, syscall.EINVAL
	}
	entry := s.entries[s.index]
	s.index++
	return fuse.DirEntry{Name: entry.Name, Mode: entryMode(entry.Kind)}, 0
}

func (s *sliceDirStream) Close() {}
