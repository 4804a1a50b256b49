////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

// Package cmd initializes the CLI and config parsers as well as the logger.
package cmd

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	jww "github.com/spf13/jwalterweatherman"
	"github.com/spf13/viper"
	"gitlab.com/elixxir/ekv"

	"gitlab.com/quietmesh/murmur/client"
	"gitlab.com/quietmesh/murmur/metadata"
	"gitlab.com/quietmesh/murmur/reconcile"
	"gitlab.com/quietmesh/murmur/relay"
	"gitlab.com/quietmesh/murmur/store/sqlite"
)

// Execute adds all child commands to the root command and sets flags
// appropriately. This is called by main.main(). It only needs to happen once
// to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "murmur",
	Short: "Runs a murmur client against the relay mesh",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		initLog(viper.GetUint("logLevel"), viper.GetString("log"))

		c := initClient()
		if err := c.Start(); err != nil {
			jww.FATAL.Panicf("Failed to start client: %+v", err)
		}
		defer func() {
			if err := c.Stop(); err != nil {
				jww.WARN.Printf("Shutdown reported: %+v", err)
			}
		}()

		fmt.Printf("Identity: %s\n", c.PubKeyHex())

		if relays := viper.GetStringSlice("relays"); len(relays) > 0 {
			if err := c.SetRelays(relays); err != nil {
				jww.FATAL.Panicf("Failed to set relays: %+v", err)
			}
		}

		sessionID := viper.GetString("sessionID")

		if name := viper.GetString("createSession"); name != "" {
			members := viper.GetStringSlice("members")
			id, err := c.CreateSession(name, members)
			if err != nil {
				jww.FATAL.Panicf("Failed to create session: %s (%+v)",
					client.UserMessage(err), err)
			}
			fmt.Printf("Created session %s\n", id)
			sessionID = id
		}

		if url := viper.GetString("url"); url != "" {
			rootID, err := c.CreateRootPost(
				sessionID, url, viper.GetString("note"))
			if err != nil {
				jww.FATAL.Panicf("Failed to post: %s (%+v)",
					client.UserMessage(err), err)
			}
			fmt.Printf("Posted %s\n", rootID)
		}

		if e := viper.GetString("react"); e != "" {
			err := c.ToggleReaction(sessionID, viper.GetString("rootID"), e,
				!viper.GetBool("remove"))
			if err != nil {
				jww.FATAL.Panicf("Failed to react: %s (%+v)",
					client.UserMessage(err), err)
			}
			fmt.Println("Reaction sent")
		}

		waitSecs := viper.GetUint("waitTimeout")
		jww.INFO.Printf("Listening for %d seconds (connectivity: %s)",
			waitSecs, c.Connectivity())
		time.Sleep(time.Duration(waitSecs) * time.Second)

		dumpState(c)
	},
}

// dumpState prints every reconciled session with its posts and reactions.
func dumpState(c *client.Client) {
	sessions, err := c.Sessions()
	if err != nil {
		jww.ERROR.Printf("Failed to list sessions: %+v", err)
		return
	}
	for _, s := range sessions {
		fmt.Printf("Session %s %q\n", s.SessionID, s.Name)
		members, err := c.ActiveMembers(s.SessionID)
		if err == nil {
			for _, m := range members {
				fmt.Printf("  member %s\n", m.MemberKey)
			}
		}
		msgs, err := c.RootMessages(s.SessionID)
		if err != nil {
			continue
		}
		for _, m := range msgs {
			fmt.Printf("  post %s by %.8s: %s", m.RootID, m.SenderKey, m.URL)
			if m.Title != "" {
				fmt.Printf(" (%s)", m.Title)
			}
			if m.Note != "" {
				fmt.Printf(" -- %s", m.Note)
			}
			fmt.Println()
			reactions, err := c.ReactionsForMessage(m.RootID)
			if err != nil {
				continue
			}
			for _, r := range reactions {
				if r.IsActive {
					fmt.Printf("    %s by %.8s\n", r.Emoji, r.SenderKey)
				}
			}
		}
	}
}

// cliSink prints remote-activity notifications to stdout.
type cliSink struct{}

func (cliSink) Notify(kind, senderLabel, body, threadID string) {
	fmt.Printf("[%s] %s: %s (session %s)\n", kind, senderLabel, body, threadID)
}

// initClient assembles a client over a filesystem session directory.
func initClient() *client.Client {
	storeDir := viper.GetString("session")
	pass := viper.GetString("password")
	if err := os.MkdirAll(storeDir, 0700); err != nil {
		jww.FATAL.Panicf("Cannot create session directory: %+v", err)
	}

	kv, err := ekv.NewFilestore(filepath.Join(storeDir, "ekv"), pass)
	if err != nil {
		jww.FATAL.Panicf("Cannot open key-value store: %+v", err)
	}

	st, err := sqlite.NewStore(filepath.Join(storeDir, "murmur.db"))
	if err != nil {
		jww.FATAL.Panicf("Cannot open database: %+v", err)
	}

	params := client.GetDefaultParams()
	fetcher := metadata.NewHTTPFetcher(
		10*time.Second, filepath.Join(storeDir, "thumbs"))
	dialer := relay.NewWebsocketDialer(params.Relay.HandshakeTimeout)

	c, err := client.New(kv, st, dialer, fetcher,
		reconcile.NopContacts{}, cliSink{}, params)
	if err != nil {
		jww.FATAL.Panicf("Cannot initialize client: %+v", err)
	}
	return c
}

func initLog(threshold uint, logPath string) {
	if logPath != "-" && logPath != "" {
		// Disable stdout output
		jww.SetStdoutOutput(io.Discard)
		// Use log file
		logOutput, err := os.OpenFile(logPath,
			os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			panic(err.Error())
		}
		jww.SetLogOutput(logOutput)
	}

	if threshold > 1 {
		jww.INFO.Printf("log level set to: TRACE")
		jww.SetStdoutThreshold(jww.LevelTrace)
		jww.SetLogThreshold(jww.LevelTrace)
		jww.SetFlags(log.LstdFlags | log.Lmicroseconds)
	} else if threshold == 1 {
		jww.INFO.Printf("log level set to: DEBUG")
		jww.SetStdoutThreshold(jww.LevelDebug)
		jww.SetLogThreshold(jww.LevelDebug)
		jww.SetFlags(log.LstdFlags | log.Lmicroseconds)
	} else {
		jww.INFO.Printf("log level set to: INFO")
		jww.SetStdoutThreshold(jww.LevelInfo)
		jww.SetLogThreshold(jww.LevelInfo)
	}
}

func init() {
	// NOTE: The point of init() is to be declarative.
	// There is one init in each sub command. Do not put variable declarations
	// here, and ensure all the Flags are of the *P variety, unless there's a
	// very good reason not to have them as local params to sub command."

	rootCmd.PersistentFlags().UintP("logLevel", "v", 0,
		"Verbose mode for debugging")
	viper.BindPFlag("logLevel", rootCmd.PersistentFlags().Lookup("logLevel"))

	rootCmd.PersistentFlags().StringP("log", "l", "-",
		"Path to the log output path (- is stdout)")
	viper.BindPFlag("log", rootCmd.PersistentFlags().Lookup("log"))

	rootCmd.PersistentFlags().StringP("session", "s", "murmur-session",
		"Sets the storage directory for client session data")
	viper.BindPFlag("session", rootCmd.PersistentFlags().Lookup("session"))

	rootCmd.PersistentFlags().StringP("password", "p", "",
		"Password to the session files")
	viper.BindPFlag("password", rootCmd.PersistentFlags().Lookup("password"))

	rootCmd.PersistentFlags().StringSliceP("relays", "r", nil,
		"Replace the configured relay URLs (ws:// or wss://)")
	viper.BindPFlag("relays", rootCmd.PersistentFlags().Lookup("relays"))

	rootCmd.Flags().StringP("createSession", "c", "",
		"Create a session with this name")
	viper.BindPFlag("createSession", rootCmd.Flags().Lookup("createSession"))

	rootCmd.Flags().StringSliceP("members", "m", nil,
		"Hex public keys of the session members")
	viper.BindPFlag("members", rootCmd.Flags().Lookup("members"))

	rootCmd.Flags().StringP("sessionID", "i", "",
		"Target session for posts and reactions")
	viper.BindPFlag("sessionID", rootCmd.Flags().Lookup("sessionID"))

	rootCmd.Flags().StringP("url", "u", "",
		"Share this URL into the target session")
	viper.BindPFlag("url", rootCmd.Flags().Lookup("url"))

	rootCmd.Flags().StringP("note", "n", "",
		"Optional note attached to the shared URL")
	viper.BindPFlag("note", rootCmd.Flags().Lookup("note"))

	rootCmd.Flags().StringP("react", "e", "",
		"React to --rootID with this emoji")
	viper.BindPFlag("react", rootCmd.Flags().Lookup("react"))

	rootCmd.Flags().StringP("rootID", "t", "",
		"Root post ID targeted by --react")
	viper.BindPFlag("rootID", rootCmd.Flags().Lookup("rootID"))

	rootCmd.Flags().BoolP("remove", "", false,
		"Clear the reaction instead of setting it")
	viper.BindPFlag("remove", rootCmd.Flags().Lookup("remove"))

	rootCmd.Flags().UintP("waitTimeout", "w", 15,
		"Seconds to keep listening before dumping state and exiting")
	viper.BindPFlag("waitTimeout", rootCmd.Flags().Lookup("waitTimeout"))
}
