package main

import (
	"fmt"

	"code.cloudfoundry.org/bytefmt"
	"github.com/spf13/cobra"

	"github.com/exanodes/vrtcore/pkg/exalog"
	"github.com/exanodes/vrtcore/pkg/token"
	"github.com/exanodes/vrtcore/pkg/uuid"
	"github.com/exanodes/vrtcore/pkg/vrt/assembly"
	"github.com/exanodes/vrtcore/pkg/vrt/group"
	"github.com/exanodes/vrtcore/pkg/vrt/layout"
	"github.com/exanodes/vrtcore/pkg/vrt/layout/rain1"
	"github.com/exanodes/vrtcore/pkg/vrt/layout/sstriping"
	"github.com/exanodes/vrtcore/pkg/vrt/realdev"
	"github.com/exanodes/vrtcore/pkg/vrt/storage"
	"github.com/exanodes/vrtcore/pkg/vrtconfig"
)

var log = exalog.New("vrtd")

var flagConfig string

func commandInit() {

	rootCmd.PersistentFlags().StringVarP(&flagConfig, "config", "c", "", "path to a vrtd config file")

	groupCreateCmd.Flags().StringVar(&flagGroupName, "name", "", "group name")
	groupCreateCmd.Flags().StringVar(&flagGroupLayout, "layout", "rain1", "layout: rain1 or sstriping")
	groupCreateCmd.Flags().IntVar(&flagGroupSpofs, "spofs", 4, "number of SPOF groups to provision")

	tokenCheckCmd.Flags().StringVar(&flagTokenAddress, "address", "127.0.0.1:7900", "token manager address")
	tokenCheckCmd.Flags().StringVar(&flagTokenClusterUUID, "cluster-uuid", "", "cluster uuid (colon-separated segments)")
	tokenCheckCmd.Flags().Uint32Var(&flagTokenNodeID, "node-id", 0, "sender node id")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(configShowCmd)

	groupCmd.AddCommand(groupCreateCmd)
	rootCmd.AddCommand(groupCmd)

	tokenCmd.AddCommand(tokenCheckCmd)
	rootCmd.AddCommand(tokenCmd)
}

var rootCmd = &cobra.Command{
	Use:   "vrtd",
	Short: "vrtd administers vrt groups: creation, status, token arbitration",
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "print the vrtd version",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Printf("vrtd %s (%s)\n", release, commit)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "config",
	Short: "show the effective configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := vrtconfig.Load(flagConfig)
		if err != nil {
			return err
		}
		fmt.Printf("chunk_size: %s\n", bytefmt.ByteSize(uint64(cfg.ChunkSizeKiB)*1024))
		fmt.Printf("slot_width: %d\n", cfg.SlotWidth)
		fmt.Printf("nb_spare: %d\n", cfg.NbSpare)
		fmt.Printf("dirty_zone_size_kib: %d\n", cfg.DirtyZoneSizeKiB)
		fmt.Printf("token_manager_address: %s\n", cfg.TokenManagerAddress)
		fmt.Printf("token_manager_port: %d\n", cfg.TokenManagerPort)
		fmt.Printf("max_outstanding_requests: %d\n", cfg.MaxOutstandingRequests)
		return nil
	},
}

var groupCmd = &cobra.Command{
	Use:   "group",
	Short: "group administration",
}

var (
	flagGroupName   string
	flagGroupLayout string
	flagGroupSpofs  int
)

// groupCreateCmd builds a group entirely out of synthetic, in-memory rdevs
// sized from the effective config and reports its freshly computed
// compound status; it stands in for the admin/CLI `group_create` call
// (spec.md §6 "External collaborators") absent a real rdev discovery
// mechanism, which this module does not implement.
var groupCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "create a vrt group and report its status",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if flagGroupName == "" {
			return fmt.Errorf("--name is required")
		}

		cfg, err := vrtconfig.Load(flagConfig)
		if err != nil {
			return err
		}

		rdevSectors := realdev.SBAreaSize + uint64(cfg.ChunkSizeKiB)*2*1024/realdev.SectorSize
		log.With("rdev_size", bytefmt.ByteSize(rdevSectors*realdev.SectorSize)).Debug("provisioning synthetic rdevs")

		st := storage.New()
		for i := 0; i < flagGroupSpofs; i++ {
			rdev := &realdev.Rdev{
				UUID:         uuid.Generate(),
				NodeID:       realdev.NodeID(i),
				TotalSectors: rdevSectors,
			}
			if err := st.AddRdev(storage.SpofID(i+1), rdev); err != nil {
				return err
			}
		}
		if err := st.CutInChunks(cfg.ChunkSizeKiB); err != nil {
			return err
		}

		ag := assembly.Setup(st, uint32(flagGroupSpofs), st.SpofGroups[0].Rdevs[0].Chunks.ChunkSize)

		var lay layout.Layout
		switch flagGroupLayout {
		case "rain1":
			g, err := rain1.Create(st, ag, uint64(cfg.ChunkSizeKiB/4), cfg.DirtyZoneSizeKiB, cfg.NbSpare)
			if err != nil {
				return err
			}
			lay = g
		case "sstriping":
			lay = sstriping.Create(ag, uint64(cfg.ChunkSizeKiB/4))
		default:
			return fmt.Errorf("unknown layout %q", flagGroupLayout)
		}

		grp := group.New(flagGroupName, uuid.Generate(), ag, lay, cfg.MaxOutstandingRequests)

		var up group.NodeSet
		for i := 0; i < flagGroupSpofs; i++ {
			up.Add(uint32(i))
		}
		status := grp.SetUpNodes(up)

		log.With("group", flagGroupName).With("status", status.String()).Debug("group created")
		fmt.Printf("group %q (%s): %s\n", flagGroupName, grp.UUID, status)
		return nil
	},
}

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "token manager client operations",
}

var (
	flagTokenAddress     string
	flagTokenClusterUUID string
	flagTokenNodeID      uint32
)

// tokenCheckCmd exercises the token client's connect/heartbeat round trip
// against a live token manager, standing in for an admin healthcheck.
var tokenCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "connect to a token manager and send one heartbeat",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		clusterUUID := uuid.Generate()
		if flagTokenClusterUUID != "" {
			var err error
			clusterUUID, err = uuid.Parse(flagTokenClusterUUID)
			if err != nil {
				return err
			}
		}

		c, err := token.NewClient(flagTokenAddress)
		if err != nil {
			return err
		}
		if err := c.Connect(); err != nil {
			return err
		}
		defer c.Disconnect()

		if err := c.CheckConnection(clusterUUID, flagTokenNodeID); err != nil {
			return err
		}

		fmt.Println("token manager reachable")
		return nil
	},
}
