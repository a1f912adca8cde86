package main

import (
    "fmt"
    "time"

    "github.com/spf13/cobra"

    "github.com/iliyamo/class-reservation/internal/database"
    "github.com/iliyamo/class-reservation/internal/model"
    "github.com/iliyamo/class-reservation/internal/repository"
)

// newSeedCmd inserts demo classes and entitlements.  The catalog and
// billing own these records in production; seeding exists for local runs.
func newSeedCmd() *cobra.Command {
    var (
        classes   int
        customers int
        capacity  int
        waitlist  int
    )
    cmd := &cobra.Command{
        Use:   "seed",
        Short: "Insert demo classes and customer entitlements",
        RunE: func(cmd *cobra.Command, args []string) error {
            cfg, logger, err := loadConfig()
            if err != nil {
                return err
            }
            ctx := cmd.Context()
            db, dialect, err := database.Open(ctx, dbOptions(cfg))
            if err != nil {
                return err
            }
            defer db.Close()
            if err := repository.Migrate(ctx, db, dialect); err != nil {
                return err
            }

            classRepo := repository.NewClassRepo(db, dialect)
            entRepo := repository.NewEntitlementRepo(db, dialect)

            start := time.Now().UTC().Truncate(time.Hour).Add(24 * time.Hour)
            for i := 0; i < classes; i++ {
                c := &model.Class{
                    Title:         fmt.Sprintf("Demo class %d", i+1),
                    Capacity:      capacity,
                    WaitlistLimit: waitlist,
                    StartsAt:      start.Add(time.Duration(i) * 2 * time.Hour),
                    EndsAt:        start.Add(time.Duration(i)*2*time.Hour + time.Hour),
                    Status:        model.ClassScheduled,
                    CreditCost:    1 + i%2,
                }
                if err := classRepo.Create(ctx, c); err != nil {
                    return fmt.Errorf("seed class: %w", err)
                }
                logger.Info("seeded class", "class_id", c.ID, "starts_at", c.StartsAt)
            }

            kinds := []model.EntitlementKind{model.Unlimited, model.SessionCount, model.CreditCount}
            for i := 0; i < customers; i++ {
                e := &model.Entitlement{
                    CustomerID: uint64(i + 1),
                    Kind:       kinds[i%len(kinds)],
                    Remaining:  10,
                    Active:     true,
                    ValidFrom:  time.Now().UTC().Add(-time.Hour),
                }
                if e.Kind == model.Unlimited {
                    e.Remaining = 0
                }
                if err := entRepo.Create(ctx, e); err != nil {
                    return fmt.Errorf("seed entitlement: %w", err)
                }
                logger.Info("seeded entitlement", "customer_id", e.CustomerID, "kind", e.Kind.String())
            }
            return nil
        },
    }
    cmd.Flags().IntVar(&classes, "classes", 3, "number of classes")
    cmd.Flags().IntVar(&customers, "customers", 5, "number of customers with an entitlement")
    cmd.Flags().IntVar(&capacity, "capacity", 2, "capacity of each class")
    cmd.Flags().IntVar(&waitlist, "waitlist", 2, "waitlist limit of each class")
    return cmd
}
