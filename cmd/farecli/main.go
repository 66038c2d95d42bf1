// farecli is a terminal consumer of the farepass SDK, a stand-in for the
// rider-facing mini-app. It exercises the same fetch, rank, and
// mutate-then-refresh flow.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rydeworks/farepass/client"
)

func main() {
	cmd := flag.String("cmd", "list", "Command: list|lock|unlock|main|use|topup|link|groups|buy")
	server := flag.String("server", "http://localhost:8080", "farepass server base URL")
	token := flag.String("token", "", "Bearer session token")
	memberFlag := flag.String("member", "", "Member id (uuid)")
	cardFlag := flag.String("card", "", "Card id (uuid)")
	hash := flag.String("hash", "", "Card QR hash (use/link)")
	code := flag.String("code", "", "Verification code (link)")
	amount := flag.Int64("amount", 0, "Amount (use/topup)")
	company := flag.String("company", "", "Company id (groups)")
	group := flag.String("group", "", "Card group id (buy)")
	asJSON := flag.Bool("json", false, "Machine-readable output")
	flag.Parse()

	if env := os.Getenv("FAREPASS_SERVER"); env != "" {
		*server = strings.TrimRight(env, "/")
	}
	if env := os.Getenv("FAREPASS_TOKEN"); *token == "" && env != "" {
		*token = env
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	c := client.New(*server, client.WithToken(*token))
	if err := run(ctx, c, *cmd, options{
		member:  *memberFlag,
		card:    *cardFlag,
		hash:    *hash,
		code:    *code,
		amount:  *amount,
		company: *company,
		group:   *group,
		asJSON:  *asJSON,
	}); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

type options struct {
	member  string
	card    string
	hash    string
	code    string
	amount  int64
	company string
	group   string
	asJSON  bool
}

func run(ctx context.Context, c *client.Client, cmd string, opts options) error {
	switch cmd {
	case "list":
		wallet, err := newWallet(c, opts)
		if err != nil {
			return err
		}
		if err := wallet.Refresh(ctx); err != nil {
			return err
		}
		return printCards(wallet.Store().Snapshot(), opts.asJSON)

	case "lock", "unlock", "main", "topup":
		wallet, err := newWallet(c, opts)
		if err != nil {
			return err
		}
		cardID, err := uuid.Parse(opts.card)
		if err != nil {
			return fmt.Errorf("--card must be a uuid")
		}
		switch cmd {
		case "lock":
			err = wallet.Lock(ctx, cardID)
		case "unlock":
			err = wallet.Unlock(ctx, cardID)
		case "main":
			err = wallet.SetMain(ctx, cardID)
		case "topup":
			if opts.amount <= 0 {
				return fmt.Errorf("--amount must be positive")
			}
			err = wallet.TopUp(ctx, cardID, opts.amount)
		}
		if err != nil {
			return err
		}
		return printCards(wallet.Store().Snapshot(), opts.asJSON)

	case "use":
		if opts.hash == "" {
			return fmt.Errorf("--hash required")
		}
		if opts.amount <= 0 {
			return fmt.Errorf("--amount must be positive")
		}
		result, err := c.Use(ctx, client.UseParams{Hash: opts.hash, UsedAmount: opts.amount})
		if err != nil {
			return err
		}
		if opts.asJSON {
			return printJSON(result)
		}
		fmt.Printf("Redeemed. Remaining balance: %d", result.RemainingBalance)
		if result.ExpireDate != "" {
			fmt.Printf(" (valid until %s)", result.ExpireDate)
		}
		fmt.Println()
		return nil

	case "link":
		wallet, err := newWallet(c, opts)
		if err != nil {
			return err
		}
		if opts.hash == "" || opts.code == "" {
			return fmt.Errorf("--hash and --code required")
		}
		if _, err := c.CheckHash(ctx, opts.hash); err != nil {
			return err
		}
		if err := wallet.VerifyCode(ctx, opts.hash, opts.code); err != nil {
			return err
		}
		fmt.Println("Card linked.")
		return printCards(wallet.Store().Snapshot(), opts.asJSON)

	case "groups":
		if opts.company == "" {
			return fmt.Errorf("--company required")
		}
		groups, err := c.CardGroups(ctx, opts.company)
		if err != nil {
			return err
		}
		if opts.asJSON {
			return printJSON(groups)
		}
		for _, g := range groups {
			fmt.Printf("%s  %-24s %s  balance=%d price=%d\n", g.ID, g.Name, g.Type, g.InitialBalance, g.Price)
		}
		return nil

	case "buy":
		wallet, err := newWallet(c, opts)
		if err != nil {
			return err
		}
		groupID, err := uuid.Parse(opts.group)
		if err != nil {
			return fmt.Errorf("--group must be a uuid")
		}
		if err := wallet.Purchase(ctx, groupID); err != nil {
			return err
		}
		fmt.Println("Card purchased.")
		return printCards(wallet.Store().Snapshot(), opts.asJSON)

	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func newWallet(c *client.Client, opts options) (*client.Wallet, error) {
	memberID, err := uuid.Parse(opts.member)
	if err != nil {
		return nil, fmt.Errorf("--member must be a uuid")
	}
	return client.NewWallet(c, client.NewStore(), memberID), nil
}

func printCards(cards []client.Card, asJSON bool) error {
	if asJSON {
		return printJSON(cards)
	}
	if len(cards) == 0 {
		fmt.Println("No cards.")
		return nil
	}
	for _, card := range cards {
		markers := ""
		if card.IsMain {
			markers += " [main]"
		}
		if card.Locked() {
			markers += " [locked]"
		}
		fmt.Printf("%s  %-6s balance=%-6d %-8s expires=%s (%s)%s\n",
			card.ID, card.CardType, card.Balance, card.Status, card.ExpireDate, card.TimeRemaining, markers)
	}
	return nil
}

func printJSON(v any) error {
	enc, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(enc))
	return nil
}
