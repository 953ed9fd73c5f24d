package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/andreyvit/diff"
	"github.com/google/gops/agent"
	"github.com/nicolagi/dedupvfs/internal/config"
	"github.com/nicolagi/dedupvfs/vfs"
	log "github.com/sirupsen/logrus"
)

// To set this at build time, use go build -ldflags '-X main.version=something'.
var version = "unknown"

var globalContext struct {
	base     string
	user     string
	logLevel string
	gops     bool
}

func newFlagSet() *flag.FlagSet {
	fs := flag.NewFlagSet("dedupvfs", flag.ExitOnError)
	fs.StringVar(&globalContext.base, "base", config.DefaultBaseDirectoryPath, "`directory` for trees, ledger and blobs")
	fs.StringVar(&globalContext.user, "user", "", "`user id` owning the tree (prompted for if omitted)")
	var levels []string
	for _, l := range log.AllLevels {
		levels = append(levels, l.String())
	}
	fs.StringVar(&globalContext.logLevel, "verbosity", "warning", "sets the log `level`, among "+strings.Join(levels, ", "))
	fs.BoolVar(&globalContext.gops, "gops", false, "start the gops diagnostics agent")
	return fs
}

var commandSet = []string{
	"pwd", "cd", "ls", "mkdir", "cp", "mv", "rm",
	"cp_from_outside", "cp_to_outside", "cp_from_outside_ex", "cp_to_outside_ex",
	"simple_cp_from_outside", "simple_mv_from_outside", "simple_cp_to_outside",
	"simple_mv", "simple_cp",
	"diff", "fsck", "q!",
}

func main() {
	fs := newFlagSet()
	_ = fs.Parse(os.Args[1:])

	log.SetOutput(os.Stderr)
	log.SetFormatter(&log.JSONFormatter{})
	ll, err := log.ParseLevel(globalContext.logLevel)
	if err != nil {
		log.Fatalf("Could not parse log level %q: %v", globalContext.logLevel, err)
	}
	log.SetLevel(ll)

	if globalContext.gops {
		if err := agent.Listen(agent.Options{ShutdownCleanup: true}); err != nil {
			log.Warningf("Could not start gops agent: %v", err)
		}
	}

	in := bufio.NewReader(os.Stdin)

	if globalContext.base == "" {
		globalContext.base = prompt(in, "root directory for this system")
	}
	if globalContext.user == "" {
		globalContext.user = prompt(in, "your user id")
	}

	v, err := vfs.Open(globalContext.base, globalContext.user)
	if err != nil {
		log.Fatalf("Could not open virtual file system: %v", err)
	}
	defer func() {
		if err := v.Close(); err != nil {
			log.Errorf("Could not close virtual file system cleanly: %v", err)
		}
	}()

	fmt.Printf("dedupvfs %s - supported commands: %s\n", version, strings.Join(commandSet, ", "))
	repl(in, v)
}

func prompt(in *bufio.Reader, label string) string {
	fmt.Printf("%s: ", label)
	line, _ := in.ReadString('\n')
	return strings.TrimSpace(line)
}

func repl(in *bufio.Reader, v *vfs.VirtualFileSystem) {
	for {
		command := prompt(in, "command")
		if command == "q!" {
			fmt.Println("bye")
			return
		}
		if !validCommand(command) {
			fmt.Printf("%q is not a valid command. Supported commands: %s\n", command, strings.Join(commandSet, ", "))
			continue
		}
		if err := dispatch(in, v, command); err != nil {
			fmt.Printf("error: %v\n", err)
		}
	}
}

func validCommand(c string) bool {
	for _, known := range commandSet {
		if c == known {
			return true
		}
	}
	return false
}

func dispatch(in *bufio.Reader, v *vfs.VirtualFileSystem, command string) error {
	switch command {
	case "pwd":
		fmt.Printf("current directory: %s\n", v.GetCwd())
		return nil
	case "cd":
		p := prompt(in, "directory to switch to")
		if err := v.Chdir(p); err != nil {
			return err
		}
		fmt.Printf("current directory: %s\n", v.GetCwd())
		return nil
	case "ls":
		names, err := v.List("")
		if err != nil {
			return err
		}
		fmt.Println(strings.Join(names, " "))
		return nil
	case "mkdir":
		p := prompt(in, "directory path to create")
		return v.Mkdir(p)
	case "cp":
		src := prompt(in, "source path")
		dst := prompt(in, "destination path")
		return v.Copy(src, dst)
	case "mv":
		src := prompt(in, "source path")
		dst := prompt(in, "destination path")
		return v.Move(src, dst)
	case "rm":
		p := prompt(in, "path to remove")
		return v.Delete(p)
	case "cp_from_outside":
		outer := prompt(in, "outer (host) path")
		inner := prompt(in, "inner path")
		return v.CopyFromOutside(outer, inner)
	case "cp_to_outside":
		inner := prompt(in, "inner path")
		outer := prompt(in, "outer (host) path")
		return v.CopyToOutside(inner, outer)
	case "cp_from_outside_ex":
		outer := prompt(in, "outer (host) path")
		inner := prompt(in, "inner path")
		extensions := splitExtensions(prompt(in, "extension list (comma separated)"))
		return v.CopyDirFromOutsideEx(outer, inner, extensions)
	case "cp_to_outside_ex":
		inner := prompt(in, "inner path")
		outer := prompt(in, "outer (host) path")
		extensions := splitExtensions(prompt(in, "extension list (comma separated)"))
		return v.CopyDirToOutsideEx(inner, outer, extensions)
	case "simple_cp_from_outside":
		outer := prompt(in, "outer (host) path")
		innerDir := prompt(in, "inner destination directory")
		dstName := prompt(in, "destination name (blank to use the outer path's base name)")
		return v.SimpleCopyFromOutside(outer, innerDir, dstName)
	case "simple_mv_from_outside":
		outer := prompt(in, "outer (host) path")
		innerDir := prompt(in, "inner destination directory")
		dstName := prompt(in, "destination name (blank to use the outer path's base name)")
		return v.SimpleMoveFromOutside(outer, innerDir, dstName)
	case "simple_cp_to_outside":
		inner := prompt(in, "inner path")
		outerDir := prompt(in, "outer (host) destination directory")
		dstName := prompt(in, "destination name (blank to use the inner path's base name)")
		return v.SimpleCopyToOutside(inner, outerDir, dstName)
	case "simple_mv":
		src := prompt(in, "source path")
		dstDir := prompt(in, "destination directory")
		dstName := prompt(in, "destination name (blank to use the source path's base name)")
		return v.SimpleMove(src, dstDir, dstName)
	case "simple_cp":
		src := prompt(in, "source path")
		dstDir := prompt(in, "destination directory")
		dstName := prompt(in, "destination name (blank to use the source path's base name)")
		return v.SimpleCopy(src, dstDir, dstName)
	case "diff":
		base := prompt(in, "base directory (inner path)")
		patch := prompt(in, "patch directory (inner path)")
		return runDiff(v, base, patch)
	case "fsck":
		return runFsck(v)
	default:
		return fmt.Errorf("unhandled command %q", command)
	}
}

func splitExtensions(s string) []string {
	return strings.Split(s, ",")
}

// runDiff prints the bare added/removed patch, then, for every removed path
// that can still be read on both sides, a unified line diff of the two
// blobs. Contents are diffed as strings whether or not they are text.
func runDiff(v *vfs.VirtualFileSystem, base, patch string) error {
	report, err := v.Compare(base, patch)
	if err != nil {
		return err
	}
	fmt.Print(report)
	for _, line := range strings.Split(report, "\n") {
		if len(line) < 2 || line[0] != '-' {
			continue
		}
		name := line[1:]
		baseContent, err := v.Read(joinInner(base, name), 0, -1)
		if err != nil {
			continue
		}
		patchContent, err := v.Read(joinInner(patch, name), 0, -1)
		if err != nil {
			continue // removed on the patch side, nothing to line-diff.
		}
		fmt.Printf("--- %s\n", name)
		fmt.Print(diff.LineDiff(string(baseContent), string(patchContent)))
	}
	return nil
}

func runFsck(v *vfs.VirtualFileSystem) error {
	report, err := v.Audit()
	if err != nil {
		return err
	}
	if report.Clean() {
		fmt.Println("no inconsistencies found")
		return nil
	}
	for _, p := range report.MissingLedgerRows {
		fmt.Printf("missing ledger row: %s\n", p)
	}
	for _, p := range report.MissingBlobs {
		fmt.Printf("missing blob: %s\n", p)
	}
	for _, p := range report.Unbound {
		fmt.Printf("no digest bound: %s\n", p)
	}
	for _, d := range report.Orphans {
		fmt.Printf("orphan blob: %s\n", d)
	}
	return nil
}

func joinInner(dir, name string) string {
	if strings.HasSuffix(dir, "/") {
		return dir + name
	}
	return dir + "/" + name
}
