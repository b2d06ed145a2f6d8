package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/fatih/color"
	"github.com/golang/glog"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/bigbag/ch579-flasher/internal/ch579"
	"github.com/bigbag/ch579-flasher/internal/ch579/ch579sim"
	"github.com/bigbag/ch579-flasher/internal/config"
	"github.com/bigbag/ch579-flasher/internal/detect"
	"github.com/bigbag/ch579-flasher/internal/flasher"
	"github.com/bigbag/ch579-flasher/internal/image"
	"github.com/bigbag/ch579-flasher/internal/protocol"
	"github.com/bigbag/ch579-flasher/internal/serial"
	"github.com/bigbag/ch579-flasher/internal/target"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var (
	portFlag        string
	baudFlag        int
	policyFlag      ch579.BootloaderPolicy
	waitTimeoutFlag time.Duration
	configFlag      string
	simulateFlag    bool
	verifyFlag      bool
	addressFlag     uint32
	lengthFlag      uint32
	probeFlag       bool
)

var (
	errorColor = color.New(color.FgRed, color.Bold)
	okColor    = color.New(color.FgGreen)
)

func main() {
	flag.Set("logtostderr", "true")

	err := newRootCmd().Execute()
	glog.Flush()
	if err != nil {
		errorColor.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "ch579-flasher",
		Short: "Flash firmware to WCH CH579 microcontrollers",
		Long: `CH579 Flasher programs the on-chip flash of WCH CH579 microcontrollers
through a serial memory-access bridge.

Settings can also come from CH579_<FLAG> environment variables or from
~/.ch579-flasher.yaml (keys: port, baud, bootloader_policy, wait_timeout, verify).`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// glog reads its flags from the standard flag set.
			flag.CommandLine.Parse(nil)
			return config.Resolve(cmd.Flags())
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&portFlag, "port", "p", "", "Serial port of the bridge (auto-detect if not specified)")
	pf.IntVarP(&baudFlag, "baud", "b", protocol.DefaultBaudRate, "Baud rate")
	pf.Var(&policyFlag, "bootloader-policy", "What to do when the ISP bootloader is enabled: enforce (refuse to flash) or ignore")
	pf.DurationVar(&waitTimeoutFlag, "wait-timeout", 0, "Deadline for the whole device operation (0 = none)")
	pf.StringVar(&configFlag, config.ConfigFlag, "", "Config file (default ~/"+config.FileName+")")
	pf.BoolVar(&simulateFlag, "simulate", false, "Run against a simulated chip instead of hardware")
	pf.AddGoFlagSet(flag.CommandLine)

	flashCmd := &cobra.Command{
		Use:   "flash <firmware.bin|firmware.hex>",
		Short: "Flash firmware to device",
		Long: `Erase, program and verify a firmware image.

Raw binaries are written at --address. Intel HEX files carry their own
addresses and --address is ignored.`,
		Args: cobra.ExactArgs(1),
		RunE: runFlash,
	}
	flashCmd.Flags().Uint32Var(&addressFlag, "address", ch579.FlashStart, "Load address for raw binaries")
	flashCmd.Flags().BoolVar(&verifyFlag, "verify", true, "Verify after flashing")

	eraseCmd := &cobra.Command{
		Use:   "erase",
		Short: "Erase code flash",
		Long:  "Erase every block touched by [--address, --address+--length). Without --length the rest of code flash is erased.",
		Args:  cobra.NoArgs,
		RunE:  runErase,
	}
	eraseCmd.Flags().Uint32Var(&addressFlag, "address", ch579.FlashStart, "First address to erase")
	eraseCmd.Flags().Uint32Var(&lengthFlag, "length", 0, "Number of bytes to erase (0 = to end of flash)")

	infoCmd := &cobra.Command{
		Use:   "info",
		Short: "Show device info",
		Long:  "Identify the connected chip and show its memory map and bootloader state.",
		Args:  cobra.NoArgs,
		RunE:  runInfo,
	}

	monitorCmd := &cobra.Command{
		Use:   "monitor <command> [args...]",
		Short: "Run a driver maintenance command",
		Long: `Run one of the driver's maintenance commands, for example:

  ch579-flasher monitor disable-bootloader
  ch579-flasher monitor "write-info-word 0x40010 0xFFFFFFBF"

Use "monitor help" to list the commands.`,
		Args: cobra.MinimumNArgs(1),
		RunE: runMonitor,
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Show version info",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("ch579-flasher %s\n", version)
			fmt.Printf("  commit: %s\n", commit)
			fmt.Printf("  built:  %s\n", date)
		},
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List available serial ports",
		Args:  cobra.NoArgs,
		RunE:  runList,
	}
	listCmd.Flags().BoolVar(&probeFlag, "probe", false, "Open every port and report the ones with a CH579 behind a bridge")

	rootCmd.AddCommand(flashCmd, eraseCmd, infoCmd, monitorCmd, versionCmd, listCmd)
	return rootCmd
}

func driverOptions() (ch579.Options, error) {
	if !policyFlag.Valid() {
		return ch579.Options{}, fmt.Errorf("%w: set --bootloader-policy to enforce or ignore", ch579.ErrInvalidPolicy)
	}
	return ch579.Options{Bootloader: policyFlag, Output: os.Stderr}, nil
}

// commandContext is canceled on interrupt and after --wait-timeout.
func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	if waitTimeoutFlag <= 0 {
		return ctx, stop
	}
	ctx, cancel := context.WithTimeout(ctx, waitTimeoutFlag)
	return ctx, func() {
		cancel()
		stop()
	}
}

func connect(opts ch579.Options) (*detect.Session, error) {
	if simulateFlag {
		chip := ch579sim.New()
		chip.BusyPolls = 3
		fmt.Println("Using simulated CH579")
		return detect.Loopback(chip, opts)
	}

	portName := portFlag
	if portName == "" {
		fmt.Println("Detecting device...")
		result, err := detect.DetectDevice(baudFlag, opts)
		if err != nil {
			return nil, fmt.Errorf("device detection failed: %w", err)
		}
		portName = result.Port
		fmt.Printf("Found %s on %s\n", result.ChipName, result.Port)
	}

	s, err := detect.Open(portName, baudFlag, opts)
	if err != nil {
		return nil, err
	}
	fmt.Printf("Port: %s @ %d baud\n", portName, baudFlag)
	return s, nil
}

func newProgressBar(total int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowBytes(true),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)
}

func runFlash(cmd *cobra.Command, args []string) error {
	firmwarePath := args[0]

	images, err := image.Load(firmwarePath, addressFlag)
	if err != nil {
		return err
	}
	if len(images) == 0 {
		return fmt.Errorf("%s: no data", firmwarePath)
	}
	totalSize := image.Size(images)
	fmt.Printf("Firmware: %s (%d bytes in %d segment(s))\n", firmwarePath, totalSize, len(images))

	opts, err := driverOptions()
	if err != nil {
		return err
	}
	s, err := connect(opts)
	if err != nil {
		return err
	}
	defer s.Close()

	region := s.Registration.FlashAt(images[0].Address)
	if region == nil {
		return fmt.Errorf("%w: 0x%08X is not in any flash region", target.ErrOutOfRange, images[0].Address)
	}

	ctx, cancel := commandContext(cmd)
	defer cancel()

	f := flasher.New(s.Target, region)
	bar := newProgressBar(totalSize, "Flashing")
	f.SetProgressCallback(func(current, total int) {
		bar.Set(current)
	})

	for _, img := range images {
		fmt.Printf("  %s at 0x%08X (%d bytes)\n", img.Name, img.Address, len(img.Data))
	}
	err = f.FlashMultiple(ctx, images, verifyFlag)
	bar.Finish()
	if err != nil {
		var verr *flasher.VerifyError
		if errors.As(err, &verr) {
			errorColor.Fprintf(os.Stderr, "Flash contents differ at 0x%08X\n", verr.Address)
		}
		if errors.Is(err, ch579.ErrBootloaderActive) {
			fmt.Fprintln(os.Stderr, `Run "ch579-flasher monitor disable-bootloader" or pass --bootloader-policy=ignore.`)
		}
		return err
	}

	if verifyFlag {
		okColor.Println("\nFlash complete, verified!")
	} else {
		okColor.Println("\nFlash complete!")
	}
	return nil
}

func runErase(cmd *cobra.Command, args []string) error {
	opts, err := driverOptions()
	if err != nil {
		return err
	}
	s, err := connect(opts)
	if err != nil {
		return err
	}
	defer s.Close()

	region := s.Registration.FlashAt(addressFlag)
	if region == nil {
		return fmt.Errorf("%w: 0x%08X is not in any flash region", target.ErrOutOfRange, addressFlag)
	}
	length := lengthFlag
	if length == 0 {
		length = region.End() - addressFlag
	}

	ctx, cancel := commandContext(cmd)
	defer cancel()

	fmt.Printf("Erasing 0x%08X..0x%08X\n", addressFlag, addressFlag+length)
	if err := flasher.New(s.Target, region).EraseRange(ctx, addressFlag, length); err != nil {
		return err
	}
	okColor.Println("Erase complete!")
	return nil
}

func runInfo(cmd *cobra.Command, args []string) error {
	opts, err := driverOptions()
	if err != nil {
		return err
	}
	s, err := connect(opts)
	if err != nil {
		return err
	}
	defer s.Close()

	reg := s.Registration
	printDeviceInfo(s.Result())
	for _, f := range reg.Flash {
		fmt.Printf("  Flash:    %s\n", f)
	}
	for _, r := range reg.RAM {
		fmt.Printf("  RAM:      %s\n", r)
	}

	cfg := s.Target.Read8(ch579.RegGlobalCfg)
	if err := s.Target.CheckError(); err != nil {
		return err
	}
	if cfg&ch579.CfgBootEnabled != 0 {
		color.Yellow("  Bootloader: enabled")
	} else {
		fmt.Println("  Bootloader: disabled")
	}

	fmt.Println("  Commands:")
	for _, c := range reg.Commands {
		fmt.Printf("    %-20s %s\n", c.Name, c.Help)
	}
	return nil
}

func printDeviceInfo(d *detect.Result) {
	fmt.Printf("  Port:     %s\n", d.Port)
	fmt.Printf("  Chip:     %s\n", d.ChipName)
	fmt.Printf("  Chip ID:  0x%02X\n", d.ChipID)
}

func runList(cmd *cobra.Command, args []string) error {
	if probeFlag {
		return runProbeList()
	}

	ports, err := serial.ListDetailed()
	if err != nil {
		return err
	}

	if len(ports) == 0 {
		fmt.Println("No serial ports found")
		return nil
	}

	fmt.Println("Available serial ports:")
	for _, p := range ports {
		fmt.Printf("  %s\n", p)
	}

	return nil
}

func runProbeList() error {
	opts, err := driverOptions()
	if err != nil {
		return err
	}

	fmt.Println("Scanning for CH579 devices...")
	devices, err := detect.ListDevices(baudFlag, opts)
	if err != nil {
		return err
	}

	if len(devices) == 0 {
		fmt.Println("No CH579 devices found")
		return nil
	}

	fmt.Printf("Found %d device(s):\n\n", len(devices))
	for i, d := range devices {
		fmt.Printf("Device %d:\n", i+1)
		printDeviceInfo(&d)
		fmt.Println()
	}
	return nil
}
