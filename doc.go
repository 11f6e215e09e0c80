// Package chat 提供一個小型即時聊天後端的在線與訊息路由核心。
//
// 實現了一個支援固定部門房間與臨時房間的聊天服務器，包含以下核心功能：
//
// 在線與房間管理
//
// 提供完整的在線狀態管理：
//   - 身份與連接的雙向註冊（覆蓋式，last-registered wins）
//   - 種子房間（永久）與臨時房間（有成員才存在）
//   - 成員異動與廣播的原子性（mutate-then-broadcast）
//   - 斷線自動清理
//
// # 訊息路由
//
// 支援兩類訊息與明確的盡力而為語義：
//   - 房間訊息：先持久化、成功才廣播；失敗只記日誌
//   - 私訊：先送達雙方再盡力持久化；離線收件者靜默丟棄
//   - 同房間兩筆訊息的「持久化→廣播」完成順序不保證等於提交順序
//
// # WebSocket 通訊
//
// 實現了即時雙向通訊機制：
//   - 心跳檢測（Ping/Pong，54s/60s）
//   - 房間廣播、單連接投遞、全域廣播
//   - 畸形封包逐事件丟棄，不影響其他連接
//
// # 持久化
//
// PostgreSQL（pgx）儲存訊息與帳號；golang-migrate 管理 schema。
// 歷史查詢回傳單一房間最近 50 筆非系統訊息（時間順序）。
//
// 架構設計
//
// 系統採用分層架構設計：
//   - Handler 層：HTTP 查詢面與帳號 API
//   - Hub 層：WebSocket 連接管理與廣播
//   - Router 層：事件處理與兩個註冊表的協調
//   - Store 層：訊息持久化
//
// 每層都有明確的職責邊界，透過介面進行交互，便於測試與擴展。
//
// 配置選項
//
// 支援多種運行時配置：
//   - -config：YAML 配置檔路徑
//   - -port：服務監聽端口（預設 5000）
//   - -log-level：日誌級別（debug/info/warn/error）
//   - -log-format：日誌格式（text/json）
package chat
