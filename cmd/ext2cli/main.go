// Command ext2cli is a thin command-line front end over package vfs,
// exposing the verbs an ext2 image can be driven through from a shell:
// ls, cat, stat, create, mkdir, write, unlink, symlink, and link.
// The verb comes first and the image file is its first operand
// ("ext2cli ls disk.img /"); an image file given before the verb is
// not accepted.
package main

import (
	"bufio"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/go-ext2/ext2fs/blockdev"
	"github.com/go-ext2/ext2fs/ext2"
	"github.com/go-ext2/ext2fs/vfs"
	"github.com/urfave/cli/v2"
)

func main() {
	app := cli.App{
		Name:      "ext2cli",
		Usage:     "Inspect and modify ext2 disk images",
		ArgsUsage: "verb image-file [operands...]",
		Commands: []*cli.Command{
			{Name: "ls", Usage: "List a directory's entries", ArgsUsage: "image-file path", Action: runLs},
			{Name: "cat", Usage: "Print a file's contents", ArgsUsage: "image-file path", Action: runCat},
			{Name: "stat", Usage: "Print an inode's metadata", ArgsUsage: "image-file path", Action: runStat},
			{Name: "create", Usage: "Create an empty regular file", ArgsUsage: "image-file path", Action: runCreate},
			{Name: "mkdir", Usage: "Create a directory", ArgsUsage: "image-file path", Action: runMkdir},
			{Name: "write", Usage: "Overwrite a file with stdin", ArgsUsage: "image-file path", Action: runWrite},
			{Name: "unlink", Usage: "Remove a directory entry", ArgsUsage: "image-file path", Action: runUnlink},
			{Name: "symlink", Usage: "Create a symlink", ArgsUsage: "image-file target path", Action: runSymlink},
			{Name: "link", Usage: "Create a hard link", ArgsUsage: "image-file oldpath newpath", Action: runLink},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatalf("fatal error: %s", err.Error())
	}
}

// mountArg opens the image file named by the command's first operand
// and mounts it.
func mountArg(c *cli.Context) (*vfs.FS, *os.File, error) {
	imagePath := c.Args().First()
	if imagePath == "" {
		return nil, nil, fmt.Errorf("missing image-file operand")
	}

	f, err := os.OpenFile(imagePath, os.O_RDWR, 0)
	if err != nil {
		return nil, nil, err
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, err
	}

	dev := blockdev.NewFileDevice(f, info.Size())
	drv, err := ext2.Mount(dev)
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	return vfs.Mount(drv), f, nil
}

// diagnostic prints the *** prefixed failure message spec.md §7
// requires and returns a non-nil error so cli.App exits non-zero.
func diagnostic(op, path string, err error) error {
	fmt.Printf("*** %s %s: %s\n", op, path, err.Error())
	return cli.Exit("", 1)
}

func runLs(c *cli.Context) error {
	fs, f, err := mountArg(c)
	if err != nil {
		return diagnostic("ls", c.Args().Get(0), err)
	}
	defer f.Close()

	path := c.Args().Get(1)
	node, err := fs.Resolve(path)
	if err != nil {
		return diagnostic("ls", path, err)
	}
	entries, err := node.Readdir()
	if err != nil {
		return diagnostic("ls", path, err)
	}

	fmt.Println(".")
	fmt.Println("..")
	for _, e := range entries {
		fmt.Println(e.Name)
	}
	return nil
}

func runCat(c *cli.Context) error {
	fs, f, err := mountArg(c)
	if err != nil {
		return diagnostic("cat", c.Args().Get(0), err)
	}
	defer f.Close()

	path := c.Args().Get(1)
	node, err := fs.Resolve(path)
	if err != nil {
		return diagnostic("cat", path, err)
	}

	stat, err := node.Stat()
	if err != nil {
		return diagnostic("cat", path, err)
	}
	buf := make([]byte, stat.Size)
	if _, err := node.Read(buf, 0); err != nil {
		return diagnostic("cat", path, err)
	}

	os.Stdout.Write(buf)
	return nil
}

func runStat(c *cli.Context) error {
	fs, f, err := mountArg(c)
	if err != nil {
		return diagnostic("stat", c.Args().Get(0), err)
	}
	defer f.Close()

	path := c.Args().Get(1)
	node, err := fs.Resolve(path)
	if err != nil {
		return diagnostic("stat", path, err)
	}
	stat, err := node.Stat()
	if err != nil {
		return diagnostic("stat", path, err)
	}

	fmt.Printf("dev=%d inum=%d mode=%#o links=%d uid=%d gid=%d rdev=%d size=%d blockSize=%d blocks=%d atime=%d mtime=%d ctime=%d\n",
		stat.Dev, stat.Inode, stat.Mode, stat.LinksCount, stat.UID, stat.GID, stat.Rdev,
		stat.Size, stat.BlockSize, stat.Blocks, stat.Atime, stat.Mtime, stat.Ctime)
	return nil
}

func runCreate(c *cli.Context) error {
	fs, f, err := mountArg(c)
	if err != nil {
		return diagnostic("create", c.Args().Get(0), err)
	}
	defer f.Close()

	path := c.Args().Get(1)
	if _, err := fs.Create(path, 0644); err != nil {
		return diagnostic("create", path, err)
	}
	return nil
}

func runMkdir(c *cli.Context) error {
	fs, f, err := mountArg(c)
	if err != nil {
		return diagnostic("mkdir", c.Args().Get(0), err)
	}
	defer f.Close()

	path := c.Args().Get(1)
	if _, err := fs.Mkdir(path, 0755); err != nil {
		return diagnostic("mkdir", path, err)
	}
	return nil
}

func runWrite(c *cli.Context) error {
	fs, f, err := mountArg(c)
	if err != nil {
		return diagnostic("write", c.Args().Get(0), err)
	}
	defer f.Close()

	path := c.Args().Get(1)
	node, err := fs.Resolve(path)
	if err != nil {
		return diagnostic("write", path, err)
	}

	body, err := io.ReadAll(bufio.NewReader(os.Stdin))
	if err != nil {
		return diagnostic("write", path, err)
	}
	if err := node.Truncate(0); err != nil {
		return diagnostic("write", path, err)
	}
	if _, err := node.Write(body, 0); err != nil {
		return diagnostic("write", path, err)
	}
	return nil
}

func runUnlink(c *cli.Context) error {
	fs, f, err := mountArg(c)
	if err != nil {
		return diagnostic("unlink", c.Args().Get(0), err)
	}
	defer f.Close()

	path := c.Args().Get(1)
	if err := fs.Unlink(path); err != nil {
		return diagnostic("unlink", path, err)
	}
	return nil
}

func runSymlink(c *cli.Context) error {
	fs, f, err := mountArg(c)
	if err != nil {
		return diagnostic("symlink", c.Args().Get(0), err)
	}
	defer f.Close()

	target := c.Args().Get(1)
	path := c.Args().Get(2)
	if _, err := fs.Symlink(path, target); err != nil {
		return diagnostic("symlink", path, err)
	}
	return nil
}

func runLink(c *cli.Context) error {
	fs, f, err := mountArg(c)
	if err != nil {
		return diagnostic("link", c.Args().Get(0), err)
	}
	defer f.Close()

	oldPath := c.Args().Get(1)
	newPath := c.Args().Get(2)
	if err := fs.Link(oldPath, newPath); err != nil {
		return diagnostic("link", newPath, err)
	}
	return nil
}
