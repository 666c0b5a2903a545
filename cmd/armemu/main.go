// Copyright 2025, Jason S. McMullan <jason.mcmullan@gmail.com>

package main

import (
	"encoding/binary"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"

	"golang.org/x/term"

	"github.com/ezrec/armemu/emulator"
)

// dump writes the machine state, emphasizing the registers that are not zero
// when the output is a terminal.
func dump(out *os.File, emu *emulator.Emulator) {
	text := emu.State.String()

	if term.IsTerminal(int(out.Fd())) {
		lines := strings.Split(strings.TrimSuffix(text, "\n"), "\n")
		for n, line := range lines {
			if !strings.HasSuffix(line, "0000_0000") && !strings.HasSuffix(line, "----") {
				lines[n] = "\033[1m" + line + "\033[0m"
			}
		}
		text = strings.Join(lines, "\n") + "\n"
	}

	fmt.Fprintf(out, "%s% 5s: %d\n", text, "ticks", emu.Ticks())
}

// loadBinary reads a raw little-endian image of instruction words.
func loadBinary(in io.Reader) (words []uint32, err error) {
	data, err := io.ReadAll(in)
	if err != nil {
		return
	}

	if len(data)%4 != 0 {
		err = ErrImageSize(len(data))
		return
	}

	for n := 0; n < len(data); n += 4 {
		words = append(words, binary.LittleEndian.Uint32(data[n:n+4]))
	}

	return
}

func main() {
	var compile string
	var image string
	var verbose bool
	var dumpState bool

	flag.StringVar(&compile, "c", "", ".s file to assemble and run")
	flag.StringVar(&image, "b", "", "Raw little-endian binary image to run")
	flag.BoolVar(&verbose, "v", false, "Verbose mode")
	flag.BoolVar(&dumpState, "d", false, "Dump the machine state on exit")

	flag.Parse()

	if flag.NArg() > 4 {
		log.Fatalf("%v: At most four arguments: %v", os.Args[0], flag.Args())
	}

	if (len(compile) == 0) == (len(image) == 0) {
		log.Fatalf("%v: One of -c or -b is required", os.Args[0])
	}

	var args []uint32
	for _, arg := range flag.Args() {
		value, err := strconv.ParseInt(arg, 0, 64)
		if err != nil || value > 0xffffffff || value < -0x80000000 {
			log.Fatalf("%v: '%v' is not a 32-bit value", os.Args[0], arg)
		}
		args = append(args, uint32(value))
	}

	emu := emulator.NewEmulator()
	emu.Verbose = verbose

	if len(compile) != 0 {
		inf, err := os.Open(compile)
		if err != nil {
			log.Fatalf("%v: %v", compile, err)
		}
		defer inf.Close()

		err = emu.Assemble(inf)
		if err != nil {
			log.Fatalf("%v: %v", compile, err)
		}
	} else {
		inf, err := os.Open(image)
		if err != nil {
			log.Fatalf("%v: %v", image, err)
		}
		defer inf.Close()

		words, err := loadBinary(inf)
		if err != nil {
			log.Fatalf("%v: %v", image, err)
		}
		emu.Load(words)
	}

	err := emu.Reset(args...)
	if err != nil {
		log.Fatal(err)
	}

	result, err := emu.Run()
	if dumpState {
		dump(os.Stderr, emu)
	}
	if err != nil {
		log.Fatal(err)
	}

	fmt.Println(int32(result))
}
