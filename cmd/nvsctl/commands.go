package main

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/dd0wney/cluso-nvs/pkg/health"
	"github.com/dd0wney/cluso-nvs/pkg/identity"
	"github.com/dd0wney/cluso-nvs/pkg/nvs"
	"github.com/dd0wney/cluso-nvs/pkg/storage"
)

var errUsage = errors.New("usage")

// CLI runs nvsctl commands against an open storage manager.
type CLI struct {
	m   *storage.Manager
	out io.Writer
}

func (cli *CLI) executeCommand(parts []string) error {
	if len(parts) == 0 {
		return nil
	}

	args := parts[1:]
	switch strings.ToLower(parts[0]) {
	case "help", "?":
		cli.showHelp()
		return nil
	case "dump":
		return cli.dump(args)
	case "fget":
		if len(args) == 1 {
			return cli.get(args[0], storage.Partitions)
		}
		return cli.dump(nil)
	case "get":
		return cli.getCmd(args)
	case "set", "fset":
		return cli.set(args)
	case "del", "delete":
		return cli.del(args)
	case "hist", "history":
		return cli.history(args)
	case "free":
		return cli.free(args)
	case "stat", "stats":
		return cli.stat(args)
	case "clear":
		return cli.clear(args)
	case "format":
		return cli.format(args)
	case "id":
		return cli.identity(args)
	case "health":
		return cli.health()
	case "sync", "flush":
		return cli.m.FlushAll()
	default:
		return fmt.Errorf("unknown command %q, type 'help'", parts[0])
	}
}

func (cli *CLI) showHelp() {
	fmt.Fprint(cli.out, `Commands:
  dump [partition]                 list every key and value
  get <key> [partition]            read a key (both partitions by default)
  set <key> <value> [partition]    write a string value (user by default)
  del <key> [partition]            delete a key (user by default)
  hist <key> <n> [partition]       read the n-th older value of a key
  free [partition]                 bytes left for new values
  stat [partition]                 cursors, geometry and space usage
  clear <partition>                erase every entry of a partition
  format <partition>               erase and remount a partition
  id [serial hw-revision]          show or provision the device identity
  health                           grade partition usage and the cache
  sync                             write cached values to flash
  help                             show this help
Partitions: factory (fact), user
`)
}

// partitionsArg resolves an optional partition argument at args[i].
func partitionsArg(args []string, i int, def []storage.Partition) ([]storage.Partition, error) {
	if len(args) <= i {
		return def, nil
	}
	p, err := storage.ParsePartition(args[i])
	if err != nil {
		return nil, err
	}
	return []storage.Partition{p}, nil
}

func (cli *CLI) dump(args []string) error {
	if len(args) > 1 {
		return fmt.Errorf("%w: dump [partition]", errUsage)
	}
	parts, err := partitionsArg(args, 0, storage.Partitions)
	if err != nil {
		return err
	}
	for _, p := range parts {
		fmt.Fprintf(cli.out, "Dump %s:\n", p)
		if err := cli.m.Dump(p, cli.out); err != nil {
			return err
		}
	}
	return nil
}

func (cli *CLI) getCmd(args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return fmt.Errorf("%w: get <key> [partition]", errUsage)
	}
	parts, err := partitionsArg(args, 1, storage.Partitions)
	if err != nil {
		return err
	}
	return cli.get(args[0], parts)
}

func (cli *CLI) get(key string, parts []storage.Partition) error {
	for _, p := range parts {
		label := fmt.Sprintf("[%s]", strings.ToUpper(p.String()))
		v, err := cli.m.Get(p, key)
		switch {
		case nvs.IsNotFound(err):
			fmt.Fprintf(cli.out, "%-9s Key: %s not found\n", label, key)
		case err != nil:
			return err
		default:
			fmt.Fprintf(cli.out, "%-9s Key: %s, Value: %s\n", label, key, storage.FormatValue(v))
		}
	}
	return nil
}

func (cli *CLI) set(args []string) error {
	switch len(args) {
	case 1:
		// fset <key> deletes, like the device console.
		return cli.del(args)
	case 2, 3:
	default:
		return fmt.Errorf("%w: set <key> <value> [partition]", errUsage)
	}
	parts, err := partitionsArg(args, 2, []storage.Partition{storage.User})
	if err != nil {
		return err
	}
	n, err := cli.m.Write(parts[0], args[0], []byte(args[1]))
	if err != nil {
		return err
	}
	if n == 0 {
		fmt.Fprintf(cli.out, "%s unchanged\n", args[0])
	} else {
		fmt.Fprintf(cli.out, "wrote %d bytes to %s\n", n, args[0])
	}
	return nil
}

func (cli *CLI) del(args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return fmt.Errorf("%w: del <key> [partition]", errUsage)
	}
	parts, err := partitionsArg(args, 1, []storage.Partition{storage.User})
	if err != nil {
		return err
	}
	return cli.m.Delete(parts[0], args[0])
}

func (cli *CLI) history(args []string) error {
	if len(args) < 2 || len(args) > 3 {
		return fmt.Errorf("%w: hist <key> <n> [partition]", errUsage)
	}
	n, err := strconv.Atoi(args[1])
	if err != nil || n < 0 {
		return fmt.Errorf("%w: history index must be a non-negative integer", errUsage)
	}
	parts, err := partitionsArg(args, 2, []storage.Partition{storage.User})
	if err != nil {
		return err
	}
	if err := cli.m.Flush(parts[0]); err != nil {
		return err
	}
	s, err := cli.m.Store(parts[0])
	if err != nil {
		return err
	}

	buf := make([]byte, s.Config().MaxValueSize())
	length, err := s.ReadHistory(args[0], buf, n)
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "Key: %s, Version: %d, Value: %s\n", args[0], n, storage.FormatValue(buf[:length]))
	return nil
}

func (cli *CLI) free(args []string) error {
	parts, err := partitionsArg(args, 0, storage.Partitions)
	if err != nil {
		return err
	}
	for _, p := range parts {
		s, err := cli.m.Store(p)
		if err != nil {
			return err
		}
		free, err := s.FreeSpace()
		if err != nil {
			return err
		}
		fmt.Fprintf(cli.out, "%-8s %d bytes free\n", p.String()+":", free)
	}
	return nil
}

func (cli *CLI) stat(args []string) error {
	parts, err := partitionsArg(args, 0, storage.Partitions)
	if err != nil {
		return err
	}
	for _, p := range parts {
		s, err := cli.m.Store(p)
		if err != nil {
			return err
		}
		st, err := s.Stat()
		if err != nil {
			return err
		}
		fmt.Fprintf(cli.out, "%s partition:\n", p)
		fmt.Fprintf(cli.out, "  Sectors:      %d x %d bytes (write block %d, ATE %d)\n",
			st.SectorCount, st.SectorSize, st.WriteBlockSize, st.ATESize)
		fmt.Fprintf(cli.out, "  Active:       sector %d, ATE %s, data %s\n", st.ActiveSector, st.ATECursor, st.DataCursor)
		fmt.Fprintf(cli.out, "  Live entries: %d\n", st.LiveEntries)
		fmt.Fprintf(cli.out, "  Free:         %d bytes (%d reclaimable, %d available)\n",
			st.FreeSpace, st.Reclaimable, st.Available)
	}
	if c := cli.m.Cache(); c != nil {
		hits, misses, rate := c.Stats()
		fmt.Fprintf(cli.out, "Cache: %d/%d entries, %d dirty, %d hits, %d misses (%.1f%%)\n",
			c.Size(), cli.m.Options().CacheEntries, c.DirtyCount(), hits, misses, rate*100)
	}
	return nil
}

func (cli *CLI) clear(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: clear <partition>", errUsage)
	}
	p, err := storage.ParsePartition(args[0])
	if err != nil {
		return err
	}
	return cli.m.Clear(p)
}

func (cli *CLI) format(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: format <partition>", errUsage)
	}
	p, err := storage.ParsePartition(args[0])
	if err != nil {
		return err
	}
	return cli.m.Format(p)
}

func (cli *CLI) identity(args []string) error {
	view := cli.m.View(storage.Factory)
	var (
		ident identity.Identity
		err   error
	)
	switch len(args) {
	case 0:
		ident, err = identity.Load(view)
	case 2:
		ident, err = identity.Provision(view, args[0], args[1])
	default:
		return fmt.Errorf("%w: id [serial hw-revision]", errUsage)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "UUID:        %s\n", ident.UUID)
	fmt.Fprintf(cli.out, "Serial:      %s\n", ident.Serial)
	fmt.Fprintf(cli.out, "Hardware:    %s\n", ident.Hardware)
	fmt.Fprintf(cli.out, "Provisioned: %s\n", ident.ProvisionedAt.Format("2006-01-02 15:04:05 MST"))
	return nil
}

func (cli *CLI) health() error {
	resp := health.ForManager(cli.m).Check()
	fmt.Fprintf(cli.out, "Status: %s\n", resp.Status)
	for _, c := range resp.Checks {
		fmt.Fprintf(cli.out, "  %-8s %-9s %s\n", c.Name, c.Status, c.Message)
	}
	return nil
}
