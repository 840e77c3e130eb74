package main

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/joncooperworks/xmlharness/resolve"
)

// credentialStore is the part of the keyring the credentials command needs.
type credentialStore interface {
	Store(host, user, password string) error
	Hosts() ([]string, error)
}

func newCredentialsCommand(a *app, open func() (credentialStore, error)) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "credentials",
		Short: "Manage keyring credentials for http(s) sample resources",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "set <host> <user>",
		Short: "Store credentials for host; the password is read from stdin",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			password, err := bufio.NewReader(a.stdin).ReadString('\n')
			password = strings.TrimRight(password, "\r\n")
			if password == "" {
				if err != nil {
					return fmt.Errorf("failed to read password: %w", err)
				}
				return errors.New("password cannot be empty")
			}
			store, err := open()
			if err != nil {
				return err
			}
			if err := store.Store(args[0], args[1], password); err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "Stored credentials for %s\n", args[0])
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List hosts with stored credentials",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := open()
			if err != nil {
				return err
			}
			hosts, err := store.Hosts()
			if err != nil {
				return err
			}
			if len(hosts) == 0 {
				fmt.Fprintln(a.stdout, "No credentials stored")
				return nil
			}
			for _, h := range hosts {
				fmt.Fprintln(a.stdout, h)
			}
			return nil
		},
	})
	return cmd
}

func openKeyring() (credentialStore, error) {
	creds, err := resolve.NewKeyringCredentials()
	if err != nil {
		return nil, err
	}
	return creds, nil
}
