package main

import (
	"bytes"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	bootshell "github.com/hwnBEAST/stm32-bootloader"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"
)

const appVersion = "1.2.0"

// stdioLink runs the shell over the terminal for development without a
// serial port or a second machine.
type stdioLink struct{}

func (stdioLink) Send(buf []byte) error {
	_, err := os.Stdout.Write(buf)
	return err
}

func (stdioLink) Recv(buf []byte) error {
	_, err := io.ReadFull(os.Stdin, buf)
	return err
}

func main() {
	version := flag.Bool("version", false, "Prints the program version.")
	port := flag.String("port", "", "Serial port name. Uses stdio when empty.")
	baud := flag.Int("baud", 115200, "Baud rate.")
	verbose := flag.Bool("v", false, "Enable verbose logging.")
	record := flag.String("record", "bootrecord.bin", "Boot record file.")
	image := flag.String("image", "", "Binary image preloaded into the execution region.")

	// Format the default profile in YAML format as an example.
	buf := new(bytes.Buffer)
	enc := yaml.NewEncoder(buf)
	enc.Encode(bootshell.DefaultProfile())
	profile := flag.String("profile", "", "Device profile yaml file. Example:\n\n"+buf.String())

	flag.Parse()

	if *version {
		fmt.Println(appVersion)
		return
	}

	if *verbose {
		log.SetLevel(log.DebugLevel)
	}

	bootshell.SetLogger(log.StandardLogger())

	// The emulated device: 16 uniform 64 KiB sectors at the usual flash
	// base.
	device := bootshell.NewMemDevice(0x08000000, 0x10000, 16)

	prof := device.Profile()
	if *profile != "" {
		f, err := os.ReadFile(*profile)
		if err != nil {
			log.Fatalf("failed to open profile file: %v", err)
		}
		prof = new(bootshell.Profile)
		if err := yaml.Unmarshal(f, prof); err != nil {
			log.Fatalf("failed to parse profile file: %v", err)
		}
	}

	if *image != "" {
		data, err := os.ReadFile(*image)
		if err != nil {
			log.Fatalf("failed to open image file: %v", err)
		}
		device.Unlock()
		if err := device.Program(prof.ActiveApp.Start, data); err != nil {
			log.Fatalf("failed to preload image: %v", err)
		}
		device.Lock()
		log.Infof("preloaded %v bytes at %#x", len(data), prof.ActiveApp.Start)
	}

	var link bootshell.HostLink
	if *port != "" {
		var err error
		link, err = bootshell.NewSerialLink(*port, *baud, time.Second)
		if err != nil {
			log.Fatalf("failed to open serial port: %v", err)
		}
	} else {
		link = stdioLink{}
	}

	hw := device.Hardware()
	hw.Records = bootshell.NewFileRecordStore(*record)

	shell, err := bootshell.New(link, hw, prof, bootshell.Options{})
	if err != nil {
		log.Fatalf("failed to initialise shell: %v", err)
	}

	if err := shell.Run(); err != nil {
		log.Fatalf("shell terminated: %v", err)
	}
	shell.Launch()

	if c, ok := link.(io.Closer); ok {
		c.Close()
	}
}
