package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	core "github.com/jmzkChain/jmzk-sub002/core"
	config "github.com/jmzkChain/jmzk-sub002/pkg/config"
)

func main() {
	rootCmd := &cobra.Command{Use: "jmzkd"}
	rootCmd.AddCommand(snapshotCmd())
	rootCmd.AddCommand(linkCmd())
	rootCmd.AddCommand(keygenCmd())
	rootCmd.AddCommand(configCmd())
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig(env string) config.Config {
	cfg, err := config.Load(env)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: config load failed, using defaults: %v\n", err)
		return config.Config{}
	}
	return *cfg
}

func snapshotCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "snapshot", Short: "export, import, or inspect a TDB snapshot"}

	export := &cobra.Command{
		Use:   "export <out-file>",
		Short: "write the current TDB to a binary snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			// A standalone CLI invocation has no live processor to snapshot;
			// this exports whatever was loaded via --from, or an empty TDB
			// otherwise, so the command is useful for format round-trip
			// testing and as a template for an embedding node.
			from, _ := cmd.Flags().GetString("from")
			db := core.NewTDB()
			if from != "" {
				f, err := os.Open(from)
				if err != nil {
					return err
				}
				defer f.Close()
				loaded, err := core.ReadSnapshot(f)
				if err != nil {
					return err
				}
				db = loaded
			}
			out, err := os.Create(args[0])
			if err != nil {
				return err
			}
			defer out.Close()
			return core.WriteSnapshot(out, db)
		},
	}
	export.Flags().String("from", "", "re-encode an existing snapshot instead of an empty TDB")
	cmd.AddCommand(export)

	imp := &cobra.Command{
		Use:   "import <in-file>",
		Short: "validate a binary snapshot and report its section summary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			db, err := core.ReadSnapshot(f)
			if err != nil {
				return err
			}
			tokens, assets := db.Stats()
			fmt.Printf("snapshot %q loaded ok (token rows: %d, asset rows: %d)\n", args[0], tokens, assets)
			return nil
		},
	}
	cmd.AddCommand(imp)

	debug := &cobra.Command{
		Use:   "debug <in-file> <out.json>",
		Short: "re-encode a binary snapshot as human-readable JSON",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer in.Close()
			db, err := core.ReadSnapshot(in)
			if err != nil {
				return err
			}
			out, err := os.Create(args[1])
			if err != nil {
				return err
			}
			defer out.Close()
			return core.WriteDebugSnapshot(out, db)
		},
	}
	cmd.AddCommand(debug)

	return cmd
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "config", Short: "print the resolved chain config"}
	cmd.Flags().String("env", "", "environment overlay to merge (e.g. loadtest)")
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		env, _ := cmd.Flags().GetString("env")
		cfg := loadConfig(env)
		fmt.Printf("%+v\n", cfg)
		return nil
	}
	return cmd
}

func linkCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "link", Short: "encode or decode a jmzk-Link URI"}

	encode := &cobra.Command{
		Use:   "encode",
		Short: "build and sign an everiPay link, printing its URI",
		RunE: func(cmd *cobra.Command, args []string) error {
			privStr, _ := cmd.Flags().GetString("priv")
			symID, _ := cmd.Flags().GetUint32("symbol-id")
			maxPay, _ := cmd.Flags().GetUint32("max-pay")
			linkIDStr, _ := cmd.Flags().GetString("link-id")
			timestamp, _ := cmd.Flags().GetUint32("timestamp")

			priv, err := core.ParsePrivateKeyString(privStr)
			if err != nil {
				return err
			}
			var linkID [16]byte
			if linkIDStr == "" {
				linkID = core.NewLinkID()
			} else {
				linkID, err = core.ParseLinkID(linkIDStr)
				if err != nil {
					return err
				}
			}

			l := &core.Link{}
			l.AddSegment(core.LinkSegment{Key: core.LinkKeyFlags, ValueU8: core.LinkFlagVersion1 | core.LinkFlagEveriPay})
			l.AddSegment(core.LinkSegment{Key: core.LinkKeySymbolID, ValueU32: symID})
			l.AddSegment(core.LinkSegment{Key: core.LinkKeyTimestamp, ValueU32: timestamp})
			l.AddSegment(core.LinkSegment{Key: core.LinkKeyMaxPay, ValueU32: maxPay})
			l.AddSegment(core.LinkSegment{Key: core.LinkKeyLinkID, ValueUUID: linkID})
			if err := l.Sign(priv); err != nil {
				return err
			}
			uri, err := l.Encode()
			if err != nil {
				return err
			}
			fmt.Println(uri)
			return nil
		},
	}
	encode.Flags().String("priv", "", "signer's PVT_K1_... private key")
	encode.Flags().Uint32("symbol-id", 1, "fungible symbol id")
	encode.Flags().Uint32("max-pay", 0, "maximum payable amount")
	encode.Flags().String("link-id", "", "link id as a standard UUID string (random if omitted)")
	encode.Flags().Uint32("timestamp", 0, "unix seconds the link was created")
	cmd.AddCommand(encode)

	decode := &cobra.Command{
		Use:   "decode <uri>",
		Short: "parse a jmzk-Link URI and print its segments and recovered signers",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := core.ParseLinkURI(args[0])
			if err != nil {
				return err
			}
			for _, seg := range l.Segments {
				fmt.Printf("segment %3d: u8=%d u16=%d u32=%d str=%q uuid=%s\n",
					seg.Key, seg.ValueU8, seg.ValueU16, seg.ValueU32, seg.ValueStr, core.FormatLinkID(seg.ValueUUID))
			}
			keys, err := l.RestoreKeys()
			if err != nil {
				return err
			}
			for _, k := range keys.Keys() {
				fmt.Println("signer:", k.String())
			}
			return nil
		},
	}
	cmd.AddCommand(decode)

	return cmd
}

func keygenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "generate a fresh secp256k1 keypair",
		RunE: func(cmd *cobra.Command, args []string) error {
			priv, err := core.GeneratePrivateKey()
			if err != nil {
				return err
			}
			fmt.Println("private:", priv.String())
			fmt.Println("public: ", priv.Public().String())
			return nil
		},
	}
}
