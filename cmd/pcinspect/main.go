// pcinspect dumps the page-level layout of a paged store file: the page
// count, how many pages are all zeroes, and optionally a content digest per
// page for comparing files across copies and restores.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"
	"github.com/zeebo/blake3"

	"pagecache/pkg/memory"
	"pagecache/pkg/primitives"
	"pagecache/pkg/storage/swapper"
)

func main() {
	var (
		file     = pflag.StringP("file", "f", "", "paged store file to inspect (required)")
		pageSize = pflag.IntP("page-size", "p", memory.DefaultPageSize, "page size the file was written with")
		digests  = pflag.BoolP("digests", "d", false, "print a BLAKE3 digest per page")
		maxPages = pflag.Int64P("max-pages", "n", -1, "inspect at most this many pages (-1 for all)")
	)
	pflag.Parse()

	if *file == "" {
		fmt.Fprintln(os.Stderr, "pcinspect: --file is required")
		pflag.Usage()
		os.Exit(2)
	}

	if err := inspect(primitives.Filepath(*file), *pageSize, *digests, *maxPages); err != nil {
		fmt.Fprintf(os.Stderr, "pcinspect: %v\n", err)
		os.Exit(1)
	}
}

func inspect(path primitives.Filepath, pageSize int, digests bool, maxPages int64) error {
	swap, err := swapper.Open(path, pageSize, false)
	if err != nil {
		return err
	}
	defer swap.Close()

	last, err := swap.LastPageID()
	if err != nil {
		return err
	}

	fmt.Printf("file:       %s\n", path)
	fmt.Printf("page size:  %d\n", pageSize)
	fmt.Printf("last page:  %d\n", last)

	if last == primitives.UnboundPageID {
		fmt.Println("pages:      0 (empty file)")
		return nil
	}

	pages := int64(last) + 1
	if maxPages >= 0 && maxPages < pages {
		pages = maxPages
	}

	buf := make([]byte, pageSize)
	zeroPages := int64(0)
	for pageID := int64(0); pageID < pages; pageID++ {
		if err := swap.Read(primitives.PageID(pageID), buf); err != nil {
			return fmt.Errorf("read page %d: %w", pageID, err)
		}
		if isZero(buf) {
			zeroPages++
			if digests {
				fmt.Printf("page %8d: zero\n", pageID)
			}
			continue
		}
		if digests {
			sum := blake3.Sum256(buf)
			fmt.Printf("page %8d: %x\n", pageID, sum[:8])
		}
	}

	fmt.Printf("inspected:  %d pages\n", pages)
	fmt.Printf("zero pages: %d\n", zeroPages)
	return nil
}

func isZero(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}
