package transfer

import (
	"bufio"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/bft-labs/socklab/internal/domain"
	"github.com/bft-labs/socklab/internal/ports"
	"github.com/bft-labs/socklab/pkg/log"
)

const shellHelp = `Commands:
  cld <dir>               change local directory
  cd <dir>                change remote directory
  get [-t|-b] <path>      download a file (-t converts line endings)
  put <path>              upload a file into the remote directory
  fl                      flip the prompt between local and remote
  lls [root [depth]]      list local files (depth -1 lists everything)
  ls [root [depth]]       list remote files
  exit                    close the session`

// Shell is the interactive client: it reads commands line by line and
// runs them against a Session.
type Shell struct {
	sess   *Session
	lines  <-chan string
	out    ports.Printer
	logger ports.Logger

	localDir  string
	remoteDir string
	showLocal bool
}

// NewShell reads commands from in and prints to out. The local
// directory starts at the process working directory.
func NewShell(sess *Session, in io.Reader, out ports.Printer, logger ports.Logger) *Shell {
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	dir, err := os.Getwd()
	if err != nil {
		dir = "."
	}
	return &Shell{
		sess:      sess,
		lines:     readLines(in),
		out:       out,
		logger:    logger,
		localDir:  dir,
		showLocal: true,
	}
}

// SetLocalDir sets the directory lls, get and put work in.
func (sh *Shell) SetLocalDir(dir string) { sh.localDir = dir }

func readLines(in io.Reader) <-chan string {
	ch := make(chan string)
	go func() {
		defer close(ch)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			ch <- sc.Text()
		}
	}()
	return ch
}

// readLine prints prompt and waits for the next line. ok is false at the
// end of input or when ctx is done.
func (sh *Shell) readLine(ctx context.Context, prompt string) (line string, ok bool) {
	sh.out.Printf("%s", prompt)
	select {
	case <-ctx.Done():
		return "", false
	case line, ok = <-sh.lines:
		return line, ok
	}
}

// Login prompts for a user name and password and authenticates.
func (sh *Shell) Login(ctx context.Context) error {
	name, ok := sh.readLine(ctx, "Insert username: ")
	if !ok {
		return io.ErrUnexpectedEOF
	}
	pass, ok := sh.readLine(ctx, "Insert password: ")
	if !ok {
		return io.ErrUnexpectedEOF
	}
	return sh.sess.Login(strings.TrimSpace(name), pass)
}

func (sh *Shell) prompt() string {
	if sh.showLocal {
		return "(local) " + sh.localDir + "> "
	}
	return "(remote) " + sh.remoteDir + "> "
}

// Run executes commands until exit, end of input or ctx is done. It
// returns the error that broke the session, if any.
func (sh *Shell) Run(ctx context.Context) error {
	sh.out.Println("Welcome to simple FTP!")
	for {
		line, ok := sh.readLine(ctx, sh.prompt())
		if !ok {
			sh.out.Println()
			return sh.closeSession()
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}

		done, err := sh.dispatch(fields[0], fields[1:])
		if done {
			return err
		}
		if err != nil && isConnectionError(err) {
			sh.logger.Error("session lost", log.Err(err))
			sh.out.Println("Closing app...")
			sh.sess.conn.Close()
			return err
		}
		if err != nil {
			sh.out.Printf("*** %v\n", err)
		}
	}
}

func (sh *Shell) dispatch(cmd string, args []string) (bool, error) {
	switch cmd {
	case "cld":
		sh.cld(args)
	case "cd":
		return false, sh.cd(args)
	case "get":
		return false, sh.get(args)
	case "put":
		return false, sh.put(args)
	case "fl":
		return false, sh.flip()
	case "lls":
		sh.lls(args)
	case "ls":
		return false, sh.ls(args)
	case "help", "?":
		sh.out.Println(shellHelp)
	case "exit", "quit":
		sh.out.Println("Closing app...")
		return true, sh.closeSession()
	default:
		sh.out.Printf("*** Unknown syntax: %s\n", strings.Join(append([]string{cmd}, args...), " "))
	}
	return false, nil
}

func (sh *Shell) closeSession() error {
	err := sh.sess.Close()
	sh.out.Println("Data Channel closed.")
	sh.out.Println("Command Channel closed.")
	return err
}

func (sh *Shell) cld(args []string) {
	if len(args) != 1 {
		sh.out.Println("*** Invalid path to directory or directory name.")
		return
	}
	dir := args[0]
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(sh.localDir, dir)
	}
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		sh.out.Println("*** Invalid path to directory or directory name.")
		return
	}
	sh.localDir = filepath.Clean(dir)
}

func (sh *Shell) cd(args []string) error {
	if len(args) != 1 {
		sh.out.Println("*** Invalid path to directory or directory name.")
		return nil
	}
	dir, err := sh.sess.Cd(args[0])
	if errors.Is(err, domain.ErrInvalidPath) {
		sh.out.Println("*** Invalid path to directory or directory name.")
		return nil
	}
	if err != nil {
		return err
	}
	sh.remoteDir = dir
	return nil
}

func (sh *Shell) get(args []string) error {
	text := false
	var remote string
	for _, a := range args {
		switch strings.ToLower(a) {
		case "-t":
			text = true
		case "-b":
			text = false
		default:
			if remote == "" {
				remote = a
			}
		}
	}
	if remote == "" {
		sh.out.Println("*** No file specified")
		return nil
	}

	sh.out.Println("Downloading...")
	saved, err := sh.sess.Download(remote, sh.localDir, text)
	switch {
	case errors.Is(err, domain.ErrInvalidPath):
		sh.out.Println("*** Invalid file path.")
		return nil
	case err != nil && !isConnectionError(err):
		sh.out.Printf("*** Download failed: %v\n", err)
		return nil
	case err != nil:
		return err
	}
	if filepath.Base(saved) != filepath.Base(filepath.FromSlash(remote)) {
		sh.out.Println("File with such path already exists on local machine")
	}
	sh.out.Printf("File saved as: %s\n", saved)
	return nil
}

func (sh *Shell) put(args []string) error {
	if len(args) < 1 {
		sh.out.Println("*** Invalid file path.")
		return nil
	}
	path := args[0]
	if !filepath.IsAbs(path) {
		path = filepath.Join(sh.localDir, path)
	}
	if info, err := os.Stat(path); err != nil || !info.Mode().IsRegular() {
		sh.out.Println("*** Invalid file path.")
		return nil
	}

	sh.out.Println("Uploading...")
	res, err := sh.sess.Upload(path)
	if err != nil {
		if isConnectionError(err) {
			return err
		}
		sh.out.Printf("*** Upload failed: %v\n", err)
		return nil
	}
	if res.Note != "" {
		sh.out.Println(res.Note)
	}
	sh.out.Printf("Stored as: %s\n", res.Stored)
	return nil
}

func (sh *Shell) flip() error {
	sh.showLocal = !sh.showLocal
	if !sh.showLocal && sh.remoteDir == "" {
		return sh.cd([]string{"."})
	}
	return nil
}

func (sh *Shell) lls(args []string) {
	root, depth := ".", 1
	switch len(args) {
	case 0:
	case 2:
		d, err := strconv.Atoi(args[1])
		if err != nil {
			sh.out.Println(`*** Invalid arguments for command "lls".`)
			return
		}
		depth = d
		fallthrough
	case 1:
		root = args[0]
	default:
		sh.out.Println(`*** Invalid arguments for command "lls".`)
		return
	}
	dir := root
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(sh.localDir, dir)
	}
	tree, err := RenderTree(dir, root, depth)
	if err != nil {
		sh.out.Println(`*** Invalid arguments for command "lls".`)
		return
	}
	sh.out.Println(tree)
}

func (sh *Shell) ls(args []string) error {
	tree, err := sh.sess.Ls(strings.Join(args, " "))
	if errors.Is(err, domain.ErrInvalidPath) {
		sh.out.Println(`*** Invalid arguments for command "ls".`)
		return nil
	}
	if err != nil {
		return err
	}
	sh.out.Println(tree)
	return nil
}
