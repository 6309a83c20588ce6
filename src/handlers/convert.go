package handlers

import (
	"github.com/google/uuid"

	"clob-engine/src/engine"
	"clob-engine/src/models"
)

func toMarketResponse(m *engine.Market) models.MarketResponse {
	p := m.Params
	return models.MarketResponse{
		MarketID:               m.ID.String(),
		Name:                   p.Name,
		BaseMint:               p.BaseMint,
		QuoteMint:              p.QuoteMint,
		BaseLotSize:            p.BaseLotSize,
		QuoteLotSize:           p.QuoteLotSize,
		MakerFee:               p.MakerFee,
		TakerFee:               p.TakerFee,
		FeeBasis:               string(p.FeeBasis),
		ReferrerRebate:         p.ReferrerRebate,
		CollectFeeAdmin:        p.CollectFeeAdmin.String(),
		FeesAccrued:            m.FeesAccrued,
		FeesSwept:              m.FeesSwept,
		ReferrerRebatesAccrued: m.ReferrerRebatesAccrued,
		SeqNum:                 m.SeqNum,
		Bids:                   m.Bids.Len(),
		Asks:                   m.Asks.Len(),
		EventQueueLength:       m.Events.Len(),
		EventQueueCapacity:     m.Events.Cap(),
		Accounts:               m.Accounts(),
	}
}

func toPlacementResponse(out engine.PlacementOutcome) models.PlacementResponse {
	return models.PlacementResponse{
		OrderID:            out.OrderID,
		PriceLots:          out.PriceLots,
		BaseLotsMatched:    out.BaseLotsMatched,
		QuoteLotsMatched:   out.QuoteLotsMatched,
		QuoteNativeMatched: out.QuoteNativeMatched,
		TakerFees:          out.TakerFees,
		MakerFees:          out.MakerFees,
		ReferrerRebate:     out.ReferrerRebate,
		Fills:              out.Fills,
		PostedBaseLots:     out.PostedBaseLots,
		Inserted:           out.Inserted,
		Discarded:          out.Discarded,
		Dropped:            out.Dropped,
		EvictedOrderID:     out.EvictedOrderID,
		ExpiredRemoved:     out.ExpiredRemoved,
		SelfTradeLots:      out.SelfTradeLots,
		DepositBase:        out.DepositBase,
		DepositQuote:       out.DepositQuote,
		EventsEvicted:      out.EventsEvicted,
	}
}

func toAccountResponse(a *engine.OpenOrdersAccount) models.AccountResponse {
	p := a.Position
	orders := make([]models.OpenOrderInfo, 0, len(a.OpenOrders))
	for _, oo := range a.OpenOrders {
		orders = append(orders, models.OpenOrderInfo{
			OrderID:         oo.ID,
			ClientOrderID:   oo.ClientOrderID,
			Side:            string(oo.Side),
			LockedPriceLots: oo.LockedPriceLots,
			Pegged:          oo.Pegged,
		})
	}
	return models.AccountResponse{
		Owner:    a.Owner.String(),
		MarketID: a.Market.String(),
		Position: models.PositionInfo{
			BidsBaseLots:             p.BidsBaseLots,
			BidsQuoteLots:            p.BidsQuoteLots,
			AsksBaseLots:             p.AsksBaseLots,
			BasePositionLots:         p.BasePositionLots,
			QuotePositionNative:      p.QuotePositionNative,
			TakerBaseLots:            p.TakerBaseLots,
			TakerQuoteLots:           p.TakerQuoteLots,
			BaseFreeNative:           p.BaseFreeNative,
			QuoteFreeNative:          p.QuoteFreeNative,
			ReferrerRebatesAvailable: p.ReferrerRebatesAvailable,
			MakerVolume:              p.MakerVolume,
			TakerVolume:              p.TakerVolume,
		},
		OpenOrders:          orders,
		NeedsReconciliation: a.NeedsReconciliation,
	}
}

func toEventInfo(ev engine.Event) models.EventInfo {
	info := models.EventInfo{
		Seq:          ev.Seq,
		Kind:         string(ev.Kind),
		Owner:        ev.Owner.String(),
		Side:         string(ev.Side),
		OrderID:      ev.OrderID,
		Quantity:     ev.Quantity,
		OrderRemoved: ev.OrderRemoved,
		PriceLots:    ev.PriceLots,
		MakerFee:     ev.MakerFee,
		TakerFee:     ev.TakerFee,
		Reason:       string(ev.Reason),
		Timestamp:    ev.Timestamp,
	}
	if ev.Taker != uuid.Nil {
		info.Taker = ev.Taker.String()
	}
	return info
}

func toConsumeResponse(res engine.ConsumeResult) models.ConsumeResponse {
	applied := make([]models.EventInfo, 0, len(res.Applied))
	for _, ev := range res.Applied {
		applied = append(applied, toEventInfo(ev))
	}
	return models.ConsumeResponse{
		Applied: applied,
		Missing: res.Missing,
		Skipped: res.Skipped,
		Pending: res.Pending,
	}
}

func toTransferResponse(req engine.TransferRequest) models.TransferResponse {
	out := models.TransferResponse{
		Owner:          req.Owner.String(),
		Base:           req.Base,
		Quote:          req.Quote,
		ReferrerRebate: req.ReferrerRebate,
	}
	if req.Referrer != nil {
		out.Referrer = req.Referrer.String()
	}
	return out
}

func toLevels(lots engine.Lots, levels []engine.Level) []models.PriceLevelInfo {
	out := make([]models.PriceLevelInfo, 0, len(levels))
	for _, l := range levels {
		out = append(out, models.PriceLevelInfo{
			PriceLots: l.PriceLots,
			Price:     lots.LotsToNativePrice(l.PriceLots),
			Quantity:  l.Quantity,
			Orders:    l.Orders,
		})
	}
	return out
}
