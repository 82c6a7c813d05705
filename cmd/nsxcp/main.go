package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/vnetops/nsx-control-plane/configuration"
	"github.com/vnetops/nsx-control-plane/dhcp"
	"github.com/vnetops/nsx-control-plane/logger"
	"github.com/vnetops/nsx-control-plane/namedlock"
	"github.com/vnetops/nsx-control-plane/nsx"
	"github.com/vnetops/nsx-control-plane/portsec"
	"github.com/vnetops/nsx-control-plane/provider"
	"github.com/vnetops/nsx-control-plane/segment"
	"github.com/vnetops/nsx-control-plane/store"
)

// version is set by the build system. Defaults to unknown.
var version = "unknown"

var configPath string

var rootCmd = &cobra.Command{
	Use:   "nsxcp",
	Short: "SDN control plane service for NSX-backed networks",
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd.Context())
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Prints the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to the configuration file")
	rootCmd.AddCommand(versionCmd)
}

func run(ctx context.Context) error {
	cfg, err := configuration.Read(configPath)
	if err != nil {
		return fmt.Errorf("reading configuration: %w", err)
	}

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer log.Close()
	log.Printf("nsxcp %s starting, manager endpoint %s", version, cfg.ManagerEndpoint)

	vlanRanges, err := configuration.ParseVlanRanges(cfg.NetworkVlanRanges)
	if err != nil {
		return fmt.Errorf("parsing vlan ranges: %w", err)
	}

	backend, err := nsx.NewClient(nsx.Config{
		Endpoint: cfg.ManagerEndpoint,
		Username: cfg.ManagerUsername,
		Password: cfg.ManagerPassword,
		Insecure: cfg.Insecure,
	})
	if err != nil {
		return fmt.Errorf("building backend client: %w", err)
	}

	st, err := store.New()
	if err != nil {
		return fmt.Errorf("initializing store: %w", err)
	}

	locks := namedlock.New()
	alloc := segment.New(st, vlanRanges)
	planner := provider.New(backend, st, alloc, provider.Defaults{
		OverlayTransportZone: cfg.DefaultOverlayTransportZone,
		VlanTransportZone:    cfg.DefaultVlanTransportZone,
		EnsSupport:           cfg.EnsSupport,
		VlanTransparent:      cfg.VlanTransparent,
	})
	saga := dhcp.New(st, backend, locks, dhcp.Config{
		DhcpProfileID:   cfg.DhcpProfileID,
		DNSDomain:       cfg.DNSDomain,
		DNSNameservers:  cfg.DNSNameservers,
		NativeDhcpVlan:  cfg.NativeDhcpVlan,
		VlanTransparent: cfg.VlanTransparent,
	}, log)

	api := &apiServer{
		cfg:     cfg,
		store:   st,
		backend: backend,
		planner: planner,
		applier: portsec.NewApplier(st, log),
		saga:    saga,
		log:     log,
	}

	srv := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           api.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("listening on %s", cfg.ListenAddress)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		log.Printf("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
