package main

import (
	"encoding/binary"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmistrz/wasi-common/abi"
	"github.com/marmistrz/wasi-common/errs"
	"github.com/marmistrz/wasi-common/internal/config"
	"github.com/marmistrz/wasi-common/internal/logger"
	"github.com/marmistrz/wasi-common/rights"
	"github.com/marmistrz/wasi-common/sandbox"
)

// readOnlyMask is subtracted from rights.All for preopens marked
// read-only in config: every right that creates, truncates, renames,
// links, removes, or sets a size/time is dropped, leaving lookup,
// read, and stat rights intact.
const readOnlyMask = rights.FDDatasync | rights.FDSync | rights.FDAllocate |
	rights.FDWrite | rights.PathCreateDirectory | rights.PathCreateFile |
	rights.PathLinkTarget | rights.PathRenameSource | rights.PathRenameTarget |
	rights.PathFilestatSetSize | rights.PathFilestatSetTimes |
	rights.FDFilestatSetSize | rights.FDFilestatSetTimes |
	rights.PathSymlink | rights.PathRemoveDirectory | rights.PathUnlinkFile

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Boot a sandbox.Context and list each configured preopen",
	RunE:  runRun,
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx := sandbox.New(cfgState.Args, cfgState.Environ)
	defer ctx.Close()

	logger.Infof("booted sandbox context: %d args, %d environ entries", len(ctx.Args), len(ctx.Environ))

	for _, p := range cfgState.Preopens {
		if err := installPreopen(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

func installPreopen(ctx *sandbox.Context, p config.PreopenConfig) error {
	base := rights.All
	if p.ReadOnly {
		base &^= readOnlyMask
	}

	h, errno := ctx.AddPreopen(p.GuestPath, p.HostPath, base, base)
	if errno != errs.Success {
		return fmt.Errorf("preopening %s (%s): %s", p.GuestPath, p.HostPath, errno)
	}
	logger.Infof("preopened %s -> %s at handle %d (read-only=%v)", p.GuestPath, p.HostPath, h, p.ReadOnly)

	names, err := listPreopenEntries(ctx, h)
	if err != nil {
		return fmt.Errorf("listing %s: %w", p.GuestPath, err)
	}
	for _, name := range names {
		fmt.Printf("%s\t%s\n", p.GuestPath, name)
	}
	return nil
}

// listPreopenEntries drains fd_readdir a buffer at a time, decoding
// each 24-byte header by hand since no guest ever runs in this
// process to do it for us.
func listPreopenEntries(ctx *sandbox.Context, h uint32) ([]string, error) {
	const scratchSize = 4096
	scratch := make([]byte, scratchSize)
	mem := abi.NewMemory(scratch)

	var names []string
	var cookie abi.DirCookie
	for {
		written, errno := ctx.FDReaddir(mem, h, 0, scratchSize, cookie)
		if errno != errs.Success {
			return nil, fmt.Errorf("fd_readdir: %s", errno)
		}
		if written == 0 {
			return names, nil
		}

		var off uint32
		var lastCookie abi.DirCookie
		for off+abi.DirentHeaderSize <= written {
			next := binary.LittleEndian.Uint64(scratch[off : off+8])
			namlen := binary.LittleEndian.Uint32(scratch[off+16 : off+20])
			nameStart := off + abi.DirentHeaderSize
			nameEnd := nameStart + namlen
			if nameEnd > written {
				break
			}
			names = append(names, string(scratch[nameStart:nameEnd]))
			lastCookie = abi.DirCookie(next)
			off = nameEnd
		}
		if lastCookie == cookie {
			return names, nil
		}
		cookie = lastCookie
	}
}
