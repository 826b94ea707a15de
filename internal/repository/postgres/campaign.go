package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/utafrali/MarketGo/internal/domain"
	"github.com/utafrali/MarketGo/internal/repository"
	"github.com/utafrali/MarketGo/pkg/database"
	apperrors "github.com/utafrali/MarketGo/pkg/errors"
)

// CampaignRepository implements repository.CampaignRepository using PostgreSQL.
type CampaignRepository struct {
	db database.DBTX
}

// NewCampaignRepository creates a new PostgreSQL-backed campaign repository.
func NewCampaignRepository(db database.DBTX) *CampaignRepository {
	return &CampaignRepository{db: db}
}

// Unique constraints from migrations/001_campaigns.up.sql.
const (
	constraintNameLower    = "idx_campaigns_name_lower"
	constraintCode         = "campaigns_code_key"
	constraintRulePriority = "promotion_rules_priority_key"
)

const campaignColumns = `id, code, name, description, status, start_date, end_date, created_at, updated_at`

const ruleColumns = `id, campaign_id, kind, priority, max_total_quantity, max_per_customer,
	start_date, end_date, created_at`

const detailColumns = `id, rule_id, COALESCE(condition_product_unit_id, ''), COALESCE(condition_category_id, ''),
	min_order_value, value, max_discount_value, COALESCE(condition_buy_quantity, 0),
	COALESCE(gift_quantity, 0), COALESCE(gift_product_unit_id, '')`

const (
	insertCampaign = `INSERT INTO campaigns (` + campaignColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	insertRule = `INSERT INTO promotion_rules (` + ruleColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	insertDetail = `INSERT INTO rule_details (id, rule_id, condition_product_unit_id, condition_category_id,
			min_order_value, value, max_discount_value, condition_buy_quantity, gift_quantity, gift_product_unit_id)
		VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), $5, $6, $7, NULLIF($8, 0), NULLIF($9, 0), NULLIF($10, ''))`

	selectCampaignByID = `SELECT ` + campaignColumns + ` FROM campaigns WHERE id = $1`

	selectActiveApplicable = `SELECT ` + campaignColumns + ` FROM campaigns c
		WHERE c.status = 'ACTIVE' AND c.start_date <= $1 AND c.end_date > $1
		  AND EXISTS (
			SELECT 1 FROM promotion_rules r
			JOIN rule_details d ON d.rule_id = r.id
			WHERE r.campaign_id = c.id AND r.start_date <= $1 AND r.end_date > $1
			  AND (d.condition_product_unit_id = ANY($2)
			    OR d.condition_category_id = ANY($3)
			    OR r.kind IN ('PERCENT_ORDER', 'FIXED_ORDER'))
		  )`

	selectRules = `SELECT ` + ruleColumns + ` FROM promotion_rules
		WHERE campaign_id = ANY($1) ORDER BY campaign_id, priority`
	selectLiveRules = `SELECT ` + ruleColumns + ` FROM promotion_rules
		WHERE campaign_id = ANY($1) AND start_date <= $2 AND end_date > $2 ORDER BY campaign_id, priority`
	selectDetails = `SELECT ` + detailColumns + ` FROM rule_details WHERE rule_id = ANY($1) ORDER BY rule_id, id`

	updateCampaignStatus = `UPDATE campaigns SET status = $3, updated_at = $4 WHERE id = $1 AND status = $2`
	deleteCampaign       = `DELETE FROM campaigns WHERE id = $1 AND status IN ('UPCOMING', 'PAUSED')`
	selectCampaignStatus = `SELECT status FROM campaigns WHERE id = $1`
	countCampaigns       = `SELECT COUNT(*) FROM campaigns WHERE status = $1`
	selectNames          = `SELECT name FROM campaigns`
	selectDue            = `SELECT ` + campaignColumns + ` FROM campaigns
		WHERE (status = 'UPCOMING' AND start_date <= $1)
		   OR (status IN ('ACTIVE', 'PAUSED') AND end_date <= $1)
		ORDER BY start_date`
)

// Create inserts the campaign and its rule tree in one transaction.
func (r *CampaignRepository) Create(ctx context.Context, c *domain.Campaign) (err error) {
	ctx, end := database.TraceQuery(ctx, "CreateCampaign", insertCampaign)
	defer func() { end(err) }()

	err = database.InTx(ctx, r.db, pgx.TxOptions{}, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, insertCampaign,
			c.ID, c.Code, c.Name, c.Description, c.Status,
			c.StartDate, c.EndDate, c.CreatedAt, c.UpdatedAt,
		); err != nil {
			return err
		}

		for i := range c.Rules {
			rule := &c.Rules[i]
			if _, err := tx.Exec(ctx, insertRule,
				rule.ID, c.ID, rule.Kind, rule.Priority, rule.MaxTotalQuantity, rule.MaxPerCustomer,
				rule.StartDate, rule.EndDate, rule.CreatedAt,
			); err != nil {
				return fmt.Errorf("insert rule %s: %w", rule.ID, err)
			}

			for j := range rule.Details {
				d := &rule.Details[j]
				if _, err := tx.Exec(ctx, insertDetail,
					d.ID, rule.ID, d.ConditionProductUnitID, d.ConditionCategoryID,
					d.MinOrderValue, d.Value, d.MaxDiscountValue,
					d.ConditionBuyQuantity, d.GiftQuantity, d.GiftProductUnitID,
				); err != nil {
					return fmt.Errorf("insert rule detail %s: %w", d.ID, err)
				}
			}
		}
		return nil
	})
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			switch pgErr.ConstraintName {
			case constraintNameLower:
				return apperrors.AlreadyExists("campaign", "name", c.Name)
			case constraintCode:
				return apperrors.AlreadyExists("campaign", "code", c.Code)
			case constraintRulePriority:
				return apperrors.InvalidFields(map[string]string{"rules.priority": "must be distinct within a campaign"})
			}
		}
		return fmt.Errorf("insert campaign: %w", err)
	}
	return nil
}

// GetByID retrieves a campaign by its ID with all rules attached.
func (r *CampaignRepository) GetByID(ctx context.Context, id string) (*domain.Campaign, error) {
	c, err := scanCampaign(r.db.QueryRow(ctx, selectCampaignByID, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("campaign", id)
		}
		return nil, fmt.Errorf("get campaign: %w", err)
	}

	campaigns := []domain.Campaign{*c}
	if err := r.attachRules(ctx, campaigns, nil); err != nil {
		return nil, err
	}
	return &campaigns[0], nil
}

// List returns campaigns matching the filter with the total count.
func (r *CampaignRepository) List(ctx context.Context, filter repository.CampaignFilter) ([]domain.Campaign, int, error) {
	var args []any
	where := ""
	if filter.Status != nil {
		where = "WHERE status = $1"
		args = append(args, *filter.Status)
	}

	query := fmt.Sprintf(`SELECT %s, count(*) OVER() AS total_count FROM campaigns %s
		ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		campaignColumns, where, len(args)+1, len(args)+2)

	params := filter.Params
	if params.PerPage <= 0 {
		params.PerPage = 20
	}
	if params.Page < 1 {
		params.Page = 1
	}
	args = append(args, params.PerPage, params.Offset())

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list campaigns: %w", err)
	}
	defer rows.Close()

	campaigns := []domain.Campaign{}
	total := 0
	for rows.Next() {
		var c domain.Campaign
		if err := rows.Scan(
			&c.ID, &c.Code, &c.Name, &c.Description, &c.Status,
			&c.StartDate, &c.EndDate, &c.CreatedAt, &c.UpdatedAt, &total,
		); err != nil {
			return nil, 0, fmt.Errorf("scan campaign row: %w", err)
		}
		c.Rules = []domain.Rule{}
		campaigns = append(campaigns, c)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate campaign rows: %w", err)
	}
	return campaigns, total, nil
}

// UpdateStatus is a compare-and-set on the status column.
func (r *CampaignRepository) UpdateStatus(ctx context.Context, id string, from, to domain.CampaignStatus, at time.Time) error {
	ct, err := r.db.Exec(ctx, updateCampaignStatus, id, from, to, at)
	if err != nil {
		return fmt.Errorf("update campaign status: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.Conflict(fmt.Sprintf("campaign %s is no longer %s", id, from))
	}
	return nil
}

// Delete removes an UPCOMING or PAUSED campaign. Rules and details cascade.
func (r *CampaignRepository) Delete(ctx context.Context, id string) error {
	ct, err := r.db.Exec(ctx, deleteCampaign, id)
	if err != nil {
		return fmt.Errorf("delete campaign: %w", err)
	}
	if ct.RowsAffected() > 0 {
		return nil
	}

	var status domain.CampaignStatus
	if err := r.db.QueryRow(ctx, selectCampaignStatus, id).Scan(&status); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NotFound("campaign", id)
		}
		return fmt.Errorf("read campaign status: %w", err)
	}
	return apperrors.Conflict(fmt.Sprintf("cannot delete campaign %s in status %s", id, status))
}

// FindActiveApplicable loads candidate campaigns, then their live rules, then
// the rules' details.
func (r *CampaignRepository) FindActiveApplicable(ctx context.Context, now time.Time, productUnitIDs, categoryIDs []string) (_ []domain.Campaign, err error) {
	ctx, end := database.TraceQuery(ctx, "FindActiveApplicable", selectActiveApplicable)
	defer func() { end(err) }()

	if productUnitIDs == nil {
		productUnitIDs = []string{}
	}
	if categoryIDs == nil {
		categoryIDs = []string{}
	}

	campaigns, err := r.queryCampaigns(ctx, selectActiveApplicable, now, productUnitIDs, categoryIDs)
	if err != nil {
		return nil, fmt.Errorf("find applicable campaigns: %w", err)
	}
	if len(campaigns) == 0 {
		return campaigns, nil
	}
	if err := r.attachRules(ctx, campaigns, &now); err != nil {
		return nil, err
	}
	return campaigns, nil
}

func (r *CampaignRepository) CountByStatus(ctx context.Context, status domain.CampaignStatus) (int, error) {
	var n int
	if err := r.db.QueryRow(ctx, countCampaigns, status).Scan(&n); err != nil {
		return 0, fmt.Errorf("count campaigns: %w", err)
	}
	return n, nil
}

func (r *CampaignRepository) ListNames(ctx context.Context) ([]string, error) {
	rows, err := r.db.Query(ctx, selectNames)
	if err != nil {
		return nil, fmt.Errorf("list campaign names: %w", err)
	}
	defer rows.Close()

	names := []string{}
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, fmt.Errorf("scan campaign name: %w", err)
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

func (r *CampaignRepository) ListDue(ctx context.Context, now time.Time) ([]domain.Campaign, error) {
	campaigns, err := r.queryCampaigns(ctx, selectDue, now)
	if err != nil {
		return nil, fmt.Errorf("list due campaigns: %w", err)
	}
	return campaigns, nil
}

func (r *CampaignRepository) queryCampaigns(ctx context.Context, query string, args ...any) ([]domain.Campaign, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	campaigns := []domain.Campaign{}
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, err
		}
		campaigns = append(campaigns, *c)
	}
	return campaigns, rows.Err()
}

// attachRules fills Rules on every campaign in place. A non-nil liveAt
// restricts rules to those whose window contains it.
func (r *CampaignRepository) attachRules(ctx context.Context, campaigns []domain.Campaign, liveAt *time.Time) error {
	ids := make([]string, len(campaigns))
	index := make(map[string]int, len(campaigns))
	for i := range campaigns {
		ids[i] = campaigns[i].ID
		index[campaigns[i].ID] = i
		campaigns[i].Rules = []domain.Rule{}
	}

	var (
		rows pgx.Rows
		err  error
	)
	if liveAt != nil {
		rows, err = r.db.Query(ctx, selectLiveRules, ids, *liveAt)
	} else {
		rows, err = r.db.Query(ctx, selectRules, ids)
	}
	if err != nil {
		return fmt.Errorf("load rules: %w", err)
	}

	var rules []domain.Rule
	for rows.Next() {
		var rule domain.Rule
		if err := rows.Scan(
			&rule.ID, &rule.CampaignID, &rule.Kind, &rule.Priority,
			&rule.MaxTotalQuantity, &rule.MaxPerCustomer,
			&rule.StartDate, &rule.EndDate, &rule.CreatedAt,
		); err != nil {
			rows.Close()
			return fmt.Errorf("scan rule: %w", err)
		}
		rule.Details = []domain.RuleDetail{}
		rules = append(rules, rule)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate rules: %w", err)
	}
	if len(rules) == 0 {
		return nil
	}

	details, err := r.loadDetails(ctx, rules)
	if err != nil {
		return err
	}
	for _, rule := range rules {
		rule.Details = append(rule.Details, details[rule.ID]...)
		c := &campaigns[index[rule.CampaignID]]
		c.Rules = append(c.Rules, rule)
	}
	return nil
}

func (r *CampaignRepository) loadDetails(ctx context.Context, rules []domain.Rule) (map[string][]domain.RuleDetail, error) {
	ids := make([]string, len(rules))
	for i := range rules {
		ids[i] = rules[i].ID
	}

	rows, err := r.db.Query(ctx, selectDetails, ids)
	if err != nil {
		return nil, fmt.Errorf("load rule details: %w", err)
	}
	defer rows.Close()

	byRule := make(map[string][]domain.RuleDetail, len(rules))
	for rows.Next() {
		var d domain.RuleDetail
		if err := rows.Scan(
			&d.ID, &d.RuleID, &d.ConditionProductUnitID, &d.ConditionCategoryID,
			&d.MinOrderValue, &d.Value, &d.MaxDiscountValue,
			&d.ConditionBuyQuantity, &d.GiftQuantity, &d.GiftProductUnitID,
		); err != nil {
			return nil, fmt.Errorf("scan rule detail: %w", err)
		}
		byRule[d.RuleID] = append(byRule[d.RuleID], d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rule details: %w", err)
	}
	return byRule, nil
}

func scanCampaign(row pgx.Row) (*domain.Campaign, error) {
	var c domain.Campaign
	if err := row.Scan(
		&c.ID, &c.Code, &c.Name, &c.Description, &c.Status,
		&c.StartDate, &c.EndDate, &c.CreatedAt, &c.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &c, nil
}
