// Package program models the binary a toolhost session has open.
//
// # Overview
//
// A Program is read fully into memory when opened. Its container format is
// detected from magic bytes and, for ELF, PE and Mach-O images, the section
// table and target architecture are extracted with the debug/* parsers.
//
// # Usage Example
//
//	prog, err := program.Open("/bin/ls")
//	if err != nil {
//		log.Fatal(err)
//	}
//	fmt.Println(prog.Name, prog.Format, prog.Arch, prog.SHA256)
//
//	cache := program.NewStringCache(64, 10*time.Minute)
//	refs, _ := cache.Get(prog, 6)
//
// # Related Packages
//
//   - pkg/plugins: the plugin tool carries the current program
//   - pkg/mcp: exposes the program to MCP clients
package program
