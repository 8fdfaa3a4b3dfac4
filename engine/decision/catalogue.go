package decision

import "github.com/nathoo/npcmind/types"

// CatalogueVersion changes whenever an action is added or removed. Learned
// weights are keyed by action id, so a change invalidates them.
const CatalogueVersion = 1

const (
	ActOfferQuest         types.ActionID = "ACT_OFFER_QUEST"
	ActOfferGift          types.ActionID = "ACT_OFFER_GIFT"
	ActFollow             types.ActionID = "ACT_FOLLOW"
	ActShareRumor         types.ActionID = "ACT_SHARE_RUMOR"
	ActOfferDiscount      types.ActionID = "ACT_OFFER_DISCOUNT"
	ActCompliment         types.ActionID = "ACT_COMPLIMENT"
	ActInviteToTavern     types.ActionID = "ACT_INVITE_TO_TAVERN"
	ActTeachSkill         types.ActionID = "ACT_TEACH_SKILL"
	ActConfideSecret      types.ActionID = "ACT_CONFIDE_SECRET"
	ActPromiseAid         types.ActionID = "ACT_PROMISE_AID"
	ActSmalltalk          types.ActionID = "ACT_SMALLTALK"
	ActGreet              types.ActionID = "ACT_GREET"
	ActAskName            types.ActionID = "ACT_ASK_NAME"
	ActGiveDirections     types.ActionID = "ACT_GIVE_DIRECTIONS"
	ActTrade              types.ActionID = "ACT_TRADE"
	ActExplainLore        types.ActionID = "ACT_EXPLAIN_LORE"
	ActObserve            types.ActionID = "ACT_OBSERVE"
	ActWait               types.ActionID = "ACT_WAIT"
	ActFarewell           types.ActionID = "ACT_FAREWELL"
	ActDeflect            types.ActionID = "ACT_DEFLECT"
	ActThreaten           types.ActionID = "ACT_THREATEN"
	ActCallGuard          types.ActionID = "ACT_CALL_GUARD"
	ActFlee               types.ActionID = "ACT_FLEE"
	ActRefuseService      types.ActionID = "ACT_REFUSE_SERVICE"
	ActInsultBack         types.ActionID = "ACT_INSULT_BACK"
	ActAttack             types.ActionID = "ACT_ATTACK"
	ActDemandCompensation types.ActionID = "ACT_DEMAND_COMPENSATION"
	ActWarnOff            types.ActionID = "ACT_WARN_OFF"
)

// catalogue is the total order used to break score ties.
var catalogue = []types.Action{
	act(ActOfferQuest, types.ClassFriendly, types.StyleWarm, 1.00, "Offer the player a task that suits them and explain why you trust them with it."),
	act(ActOfferGift, types.ClassFriendly, types.StyleWarm, 0.98, "Give the player a small token of appreciation."),
	act(ActFollow, types.ClassFriendly, types.StyleWarm, 0.96, "Offer to accompany the player for a while."),
	act(ActShareRumor, types.ClassFriendly, types.StyleNeutral, 0.95, "Share a piece of local gossip the player might find useful."),
	act(ActOfferDiscount, types.ClassFriendly, types.StyleWarm, 0.94, "Offer the player a better price than usual."),
	act(ActCompliment, types.ClassFriendly, types.StyleWarm, 0.93, "Say something genuinely kind about the player."),
	act(ActInviteToTavern, types.ClassFriendly, types.StyleWarm, 0.92, "Invite the player to share a drink later."),
	act(ActTeachSkill, types.ClassFriendly, types.StyleNeutral, 0.91, "Offer to teach the player something you are good at."),
	act(ActConfideSecret, types.ClassFriendly, types.StyleWarm, 0.90, "Quietly confide something personal to the player."),
	act(ActPromiseAid, types.ClassFriendly, types.StyleWarm, 0.90, "Promise to help the player if they ever need it."),

	act(ActSmalltalk, types.ClassNeutral, types.StyleNeutral, 0.90, "Make light conversation about the day or the weather."),
	act(ActGreet, types.ClassNeutral, types.StyleNeutral, 0.88, "Greet the player politely."),
	act(ActAskName, types.ClassNeutral, types.StyleNeutral, 0.85, "Ask the player who they are."),
	act(ActGiveDirections, types.ClassNeutral, types.StyleNeutral, 0.84, "Point the player toward a nearby place of interest."),
	act(ActTrade, types.ClassNeutral, types.StyleNeutral, 0.83, "Offer to buy or sell goods at the normal price."),
	act(ActExplainLore, types.ClassNeutral, types.StyleNeutral, 0.82, "Tell the player something about local history."),
	act(ActObserve, types.ClassNeutral, types.StyleNeutral, 0.80, "Watch the player carefully and say little."),
	act(ActWait, types.ClassNeutral, types.StyleNeutral, 0.78, "Pause and let the player speak first."),
	act(ActFarewell, types.ClassNeutral, types.StyleNeutral, 0.75, "End the conversation politely."),
	act(ActDeflect, types.ClassNeutral, types.StyleFirm, 0.74, "Change the subject without answering directly."),

	act(ActThreaten, types.ClassHostile, types.StyleHostile, 0.95, "Warn the player of consequences if they continue."),
	act(ActCallGuard, types.ClassHostile, types.StyleFirm, 0.93, "Call loudly for the guards."),
	act(ActFlee, types.ClassHostile, types.StyleFirm, 0.92, "Back away and try to leave the conversation."),
	act(ActRefuseService, types.ClassHostile, types.StyleFirm, 0.91, "Refuse to deal with the player."),
	act(ActInsultBack, types.ClassHostile, types.StyleHostile, 0.89, "Answer the player with a cutting remark."),
	act(ActAttack, types.ClassHostile, types.StyleHostile, 0.85, "Lash out at the player."),
	act(ActDemandCompensation, types.ClassHostile, types.StyleFirm, 0.88, "Demand that the player make amends."),
	act(ActWarnOff, types.ClassHostile, types.StyleFirm, 0.90, "Tell the player to keep their distance."),
}

var byID = func() map[types.ActionID]int {
	m := make(map[types.ActionID]int, len(catalogue))
	for i, a := range catalogue {
		m[a.ID] = i
	}
	return m
}()

// Catalogue returns a copy of every action in tie-break order.
func Catalogue() []types.Action {
	out := make([]types.Action, len(catalogue))
	copy(out, catalogue)
	return out
}

// Lookup returns the catalogue entry for id.
func Lookup(id types.ActionID) (types.Action, bool) {
	i, ok := byID[id]
	if !ok {
		return types.Action{}, false
	}
	return catalogue[i], true
}

// Directive returns the realization instruction for an action.
func Directive(id types.ActionID) string {
	if a, ok := Lookup(id); ok {
		return a.Directive
	}
	return ""
}

func act(id types.ActionID, class types.ActionClass, style types.Style, base float64, directive string) types.Action {
	return types.Action{ID: id, Class: class, Style: style, BaseScore: base, Directive: directive}
}
