package main

import (
	"fmt"
	"io"
	"log"
	"os"

	"github.com/urfave/cli/v2"
	"github.com/vfscore/vfscore"
	"github.com/vfscore/vfscore/presets"
	"github.com/vfscore/vfscore/vfs"
)

func main() {
	app := cli.App{
		Usage: "Drive a mounted virtual file system",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "dir", Required: true, Usage: "mounted volume directory"},
			&cli.StringFlag{Name: "preset", Value: "default", Usage: "named volume tunable preset"},
		},
		Commands: []*cli.Command{
			{Name: "format", Usage: "create a fresh volume", Action: formatVolume, ArgsUsage: " "},
			{Name: "ls", Usage: "list a directory's entries", Action: listDir, ArgsUsage: "PATH"},
			{Name: "cat", Usage: "print a file's contents", Action: catFile, ArgsUsage: "PATH"},
			{Name: "write", Usage: "write stdin to a file, creating it", Action: writeFile, ArgsUsage: "PATH"},
			{
				Name:  "rm",
				Usage: "remove a file or directory",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "recursive", Usage: "remove a non-empty directory and everything in it"},
				},
				Action:    removeEntry,
				ArgsUsage: "PATH",
			},
			{Name: "mv", Usage: "rename a file or directory", Action: moveEntry, ArgsUsage: "OLD NEW"},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatalf("fatal error: %s", err.Error())
	}
}

func paramsFromContext(c *cli.Context) (vfscore.Params, error) {
	return presets.Get(c.String("preset"))
}

func formatVolume(c *cli.Context) error {
	params, err := paramsFromContext(c)
	if err != nil {
		return err
	}
	fs, err := vfs.Mount(c.String("dir"), true, params)
	if err != nil {
		return err
	}
	return fs.Unmount()
}

func mount(c *cli.Context) (*vfs.FileSystem, error) {
	params, err := paramsFromContext(c)
	if err != nil {
		return nil, err
	}
	return vfs.Mount(c.String("dir"), false, params)
}

func listDir(c *cli.Context) error {
	fs, err := mount(c)
	if err != nil {
		return err
	}
	defer fs.Unmount()

	path := c.Args().First()
	if path == "" {
		path = "/"
	}

	names, err := fs.List(path)
	if err != nil {
		return err
	}
	for _, name := range names {
		fmt.Println(name)
	}
	return nil
}

func catFile(c *cli.Context) error {
	fs, err := mount(c)
	if err != nil {
		return err
	}
	defer fs.Unmount()

	h, err := fs.Open(c.Args().First(), "r")
	if err != nil {
		return err
	}
	defer h.Close()

	buf := make([]byte, 4096)
	for {
		n, err := h.Read(buf)
		if n > 0 {
			os.Stdout.Write(buf[:n])
		}
		if err != nil || n == 0 {
			break
		}
	}
	return nil
}

func writeFile(c *cli.Context) error {
	fs, err := mount(c)
	if err != nil {
		return err
	}
	defer fs.Unmount()

	h, err := fs.Open(c.Args().First(), "wct")
	if err != nil {
		return err
	}
	defer h.Close()

	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return err
	}
	_, err = h.Write(data)
	return err
}

func removeEntry(c *cli.Context) error {
	fs, err := mount(c)
	if err != nil {
		return err
	}
	defer fs.Unmount()
	return fs.Remove(c.Args().First(), c.Bool("recursive"))
}

func moveEntry(c *cli.Context) error {
	fs, err := mount(c)
	if err != nil {
		return err
	}
	defer fs.Unmount()
	return fs.Rename(c.Args().Get(0), c.Args().Get(1))
}
